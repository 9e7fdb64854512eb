package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/szaher/contractbot/internal/flow"
	_ "modernc.org/sqlite"
)

const isoDate = "2006-01-02"

// SQLiteStore persists records in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS accounts (
		account_number TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		account_number TEXT NOT NULL REFERENCES accounts(account_number),
		name TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		comments TEXT NOT NULL,
		is_pricelist INTEGER NOT NULL,
		hpp_required INTEGER NOT NULL,
		session_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_account ON contracts(account_number);

	CREATE TABLE IF NOT EXISTS checklists (
		id TEXT PRIMARY KEY,
		contract_id TEXT,
		date_of_signature TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		expiration_date TEXT NOT NULL,
		flow_down_date TEXT NOT NULL,
		price_expiration_date TEXT NOT NULL,
		session_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checklists_contract ON checklists(contract_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Execute records a completed flow.
func (s *SQLiteStore) Execute(ctx context.Context, req flow.Request) (flow.Completion, error) {
	return execute(ctx, s, req, s.now())
}

// ValidateIdentifier reports whether an active account exists.
func (s *SQLiteStore) ValidateIdentifier(ctx context.Context, kind, value string) (bool, error) {
	return validateIdentifier(ctx, s, kind, value)
}

// UpsertAccount creates or updates an account.
func (s *SQLiteStore) UpsertAccount(ctx context.Context, a Account) error {
	query := `
	INSERT INTO accounts (account_number, name, active)
	VALUES (?, ?, ?)
	ON CONFLICT(account_number) DO UPDATE SET
		name = excluded.name,
		active = excluded.active`
	if _, err := s.db.ExecContext(ctx, query, a.Number, a.Name, boolInt(a.Active)); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Contract retrieves a contract by id.
func (s *SQLiteStore) Contract(ctx context.Context, id string) (*Contract, error) {
	query := `
		SELECT id, account_number, name, title, description, comments,
		       is_pricelist, hpp_required, session_id, created_at
		FROM contracts WHERE id = ?`

	var c Contract
	var sessionID sql.NullString
	var pricelist, hpp int
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.AccountNumber, &c.Name, &c.Title, &c.Description, &c.Comments,
		&pricelist, &hpp, &sessionID, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contract row: %w", err)
	}
	c.IsPricelist = pricelist != 0
	c.HPPRequired = hpp != 0
	c.SessionID = sessionID.String
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// Checklists lists the checklists of a contract, oldest first.
func (s *SQLiteStore) Checklists(ctx context.Context, contractID string) ([]Checklist, error) {
	query := `
		SELECT id, contract_id, date_of_signature, effective_date, expiration_date,
		       flow_down_date, price_expiration_date, session_id, created_at
		FROM checklists WHERE contract_id = ?
		ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("query checklists: %w", err)
	}
	defer rows.Close()

	var out []Checklist
	for rows.Next() {
		var c Checklist
		var parent, sessionID sql.NullString
		var dates [5]string
		var createdAt int64
		if err := rows.Scan(&c.ID, &parent, &dates[0], &dates[1], &dates[2], &dates[3], &dates[4], &sessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checklist row: %w", err)
		}
		targets := []*time.Time{&c.DateOfSignature, &c.EffectiveDate, &c.ExpirationDate, &c.FlowDownDate, &c.PriceExpirationDate}
		for i, d := range dates {
			t, err := time.Parse(isoDate, d)
			if err != nil {
				return nil, fmt.Errorf("parse checklist %s date %q: %w", c.ID, d, err)
			}
			*targets[i] = t
		}
		c.ContractID = parent.String
		c.SessionID = sessionID.String
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	return out, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) accountActive(ctx context.Context, number string) (bool, error) {
	var active int
	err := s.db.QueryRowContext(ctx, `SELECT active FROM accounts WHERE account_number = ?`, number).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query account: %w", err)
	}
	return active != 0, nil
}

func (s *SQLiteStore) contractExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM contracts WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("query contract: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) insertContract(ctx context.Context, c Contract) error {
	query := `
	INSERT INTO contracts (id, account_number, name, title, description, comments,
		is_pricelist, hpp_required, session_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.AccountNumber, c.Name, c.Title, c.Description, c.Comments,
		boolInt(c.IsPricelist), boolInt(c.HPPRequired), nullString(c.SessionID), c.CreatedAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) insertChecklist(ctx context.Context, c Checklist) error {
	query := `
	INSERT INTO checklists (id, contract_id, date_of_signature, effective_date, expiration_date,
		flow_down_date, price_expiration_date, session_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, nullString(c.ContractID),
		c.DateOfSignature.Format(isoDate), c.EffectiveDate.Format(isoDate), c.ExpirationDate.Format(isoDate),
		c.FlowDownDate.Format(isoDate), c.PriceExpirationDate.Format(isoDate),
		nullString(c.SessionID), c.CreatedAt.Unix(),
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
