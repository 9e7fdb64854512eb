package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/szaher/contractbot/internal/flow"
)

// PostgresStore persists records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_number TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS contracts (
	id TEXT PRIMARY KEY,
	account_number TEXT NOT NULL REFERENCES accounts(account_number),
	name TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	comments TEXT NOT NULL,
	is_pricelist BOOLEAN NOT NULL,
	hpp_required BOOLEAN NOT NULL,
	session_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_account ON contracts(account_number);

CREATE TABLE IF NOT EXISTS checklists (
	id TEXT PRIMARY KEY,
	contract_id TEXT REFERENCES contracts(id),
	date_of_signature DATE NOT NULL,
	effective_date DATE NOT NULL,
	expiration_date DATE NOT NULL,
	flow_down_date DATE NOT NULL,
	price_expiration_date DATE NOT NULL,
	session_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checklists_contract ON checklists(contract_id);
`

// NewPostgres connects to databaseURL and creates the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Execute records a completed flow.
func (s *PostgresStore) Execute(ctx context.Context, req flow.Request) (flow.Completion, error) {
	return execute(ctx, s, req, s.now())
}

// ValidateIdentifier reports whether an active account exists.
func (s *PostgresStore) ValidateIdentifier(ctx context.Context, kind, value string) (bool, error) {
	return validateIdentifier(ctx, s, kind, value)
}

// UpsertAccount creates or updates an account.
func (s *PostgresStore) UpsertAccount(ctx context.Context, a Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (account_number, name, active) VALUES ($1, $2, $3)
		ON CONFLICT (account_number) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active`,
		a.Number, a.Name, a.Active)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Contract retrieves a contract by id.
func (s *PostgresStore) Contract(ctx context.Context, id string) (*Contract, error) {
	var c Contract
	var sessionID *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_number, name, title, description, comments,
		       is_pricelist, hpp_required, session_id, created_at
		FROM contracts WHERE id = $1`, id).Scan(
		&c.ID, &c.AccountNumber, &c.Name, &c.Title, &c.Description, &c.Comments,
		&c.IsPricelist, &c.HPPRequired, &sessionID, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contract row: %w", err)
	}
	if sessionID != nil {
		c.SessionID = *sessionID
	}
	return &c, nil
}

// Checklists lists the checklists of a contract, oldest first.
func (s *PostgresStore) Checklists(ctx context.Context, contractID string) ([]Checklist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, contract_id, date_of_signature, effective_date, expiration_date,
		       flow_down_date, price_expiration_date, session_id, created_at
		FROM checklists WHERE contract_id = $1
		ORDER BY created_at, id`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query checklists: %w", err)
	}
	defer rows.Close()

	var out []Checklist
	for rows.Next() {
		var c Checklist
		var parent, sessionID *string
		if err := rows.Scan(&c.ID, &parent, &c.DateOfSignature, &c.EffectiveDate, &c.ExpirationDate,
			&c.FlowDownDate, &c.PriceExpirationDate, &sessionID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist row: %w", err)
		}
		if parent != nil {
			c.ContractID = *parent
		}
		if sessionID != nil {
			c.SessionID = *sessionID
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklists: %w", err)
	}
	return out, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) accountActive(ctx context.Context, number string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `SELECT active FROM accounts WHERE account_number = $1`, number).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query account: %w", err)
	}
	return active, nil
}

func (s *PostgresStore) contractExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("query contract: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) insertContract(ctx context.Context, c Contract) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contracts (id, account_number, name, title, description, comments,
			is_pricelist, hpp_required, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.AccountNumber, c.Name, c.Title, c.Description, c.Comments,
		c.IsPricelist, c.HPPRequired, optional(c.SessionID), c.CreatedAt)
	return err
}

func (s *PostgresStore) insertChecklist(ctx context.Context, c Checklist) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checklists (id, contract_id, date_of_signature, effective_date, expiration_date,
			flow_down_date, price_expiration_date, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, optional(c.ContractID), c.DateOfSignature, c.EffectiveDate, c.ExpirationDate,
		c.FlowDownDate, c.PriceExpirationDate, optional(c.SessionID), c.CreatedAt)
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
