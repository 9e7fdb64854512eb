// Package store persists contracts and checklists and answers account
// lookups. It is the completion executor and identifier validator used by
// the flows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/field"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/validation"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Result id prefixes.
const (
	ContractIDPrefix  = "ctr_"
	ChecklistIDPrefix = "chk_"
)

// Account is a customer account contracts are created against.
type Account struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Contract is a created contract.
type Contract struct {
	ID            string    `json:"id"`
	AccountNumber string    `json:"account_number"`
	Name          string    `json:"name"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Comments      string    `json:"comments"`
	IsPricelist   bool      `json:"is_pricelist"`
	HPPRequired   bool      `json:"hpp_required"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Checklist is the set of dates attached to a contract.
type Checklist struct {
	ID                  string    `json:"id"`
	ContractID          string    `json:"contract_id,omitempty"`
	DateOfSignature     time.Time `json:"date_of_signature"`
	EffectiveDate       time.Time `json:"effective_date"`
	ExpirationDate      time.Time `json:"expiration_date"`
	FlowDownDate        time.Time `json:"flow_down_date"`
	PriceExpirationDate time.Time `json:"price_expiration_date"`
	SessionID           string    `json:"session_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Store is a system of record for the flows.
type Store interface {
	flow.Executor
	extract.IdentifierValidator

	// UpsertAccount creates or replaces an account.
	UpsertAccount(ctx context.Context, a Account) error
	// Contract returns the contract with id, or ErrNotFound.
	Contract(ctx context.Context, id string) (*Contract, error)
	// Checklists returns the checklists of a contract, oldest first.
	Checklists(ctx context.Context, contractID string) ([]Checklist, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// DemoAccounts seed empty stores so the bot is usable out of the box.
var DemoAccounts = []Account{
	{Number: "1234567", Name: "Acme Industrial", Active: true},
	{Number: "7654321", Name: "Globex Corporation", Active: true},
	{Number: "100200300", Name: "Initech", Active: true},
	{Number: "555000", Name: "Umbrella Supply", Active: false},
}

// Seed upserts accounts into s.
func Seed(ctx context.Context, s Store, accounts []Account) error {
	for _, a := range accounts {
		if err := s.UpsertAccount(ctx, a); err != nil {
			return fmt.Errorf("seed account %s: %w", a.Number, err)
		}
	}
	return nil
}

// backend is the storage surface shared completion logic runs on.
type backend interface {
	accountActive(ctx context.Context, number string) (bool, error)
	contractExists(ctx context.Context, id string) (bool, error)
	insertContract(ctx context.Context, c Contract) error
	insertChecklist(ctx context.Context, c Checklist) error
}

// execute records the result of a flow. Missing references are business
// rejections; storage errors are returned.
func execute(ctx context.Context, b backend, req flow.Request, now time.Time) (flow.Completion, error) {
	switch req.Type {
	case flow.ContractCreation:
		c := contractFrom(session.GenerateID(ContractIDPrefix), req, now)
		ok, err := b.accountActive(ctx, c.AccountNumber)
		if err != nil {
			return flow.Completion{}, fmt.Errorf("check account: %w", err)
		}
		if !ok {
			return flow.Completion{Message: fmt.Sprintf("account %s is not active", c.AccountNumber)}, nil
		}
		if err := b.insertContract(ctx, c); err != nil {
			return flow.Completion{}, fmt.Errorf("insert contract: %w", err)
		}
		return flow.Completion{ResultID: c.ID, OK: true}, nil

	case flow.Checklist:
		c, err := checklistFrom(session.GenerateID(ChecklistIDPrefix), req, now)
		if err != nil {
			return flow.Completion{Message: err.Error()}, nil
		}
		if c.ContractID != "" {
			ok, err := b.contractExists(ctx, c.ContractID)
			if err != nil {
				return flow.Completion{}, fmt.Errorf("check contract: %w", err)
			}
			if !ok {
				return flow.Completion{Message: fmt.Sprintf("contract %s does not exist", c.ContractID)}, nil
			}
		}
		if err := b.insertChecklist(ctx, c); err != nil {
			return flow.Completion{}, fmt.Errorf("insert checklist: %w", err)
		}
		return flow.Completion{ResultID: c.ID, OK: true}, nil

	default:
		return flow.Completion{}, fmt.Errorf("unsupported flow %s", req.Type)
	}
}

func validateIdentifier(ctx context.Context, b backend, kind, value string) (bool, error) {
	if kind != extract.IdentifierKindAccount {
		return false, fmt.Errorf("unknown identifier kind %q", kind)
	}
	return b.accountActive(ctx, value)
}

func contractFrom(id string, req flow.Request, now time.Time) Contract {
	f := req.Fields
	return Contract{
		ID:            id,
		AccountNumber: f[field.AccountNumber],
		Name:          f[field.ContractName],
		Title:         f[field.Title],
		Description:   f[field.Description],
		Comments:      f[field.Comments],
		IsPricelist:   yes(f[field.IsPricelist]),
		HPPRequired:   yes(req.Optional[field.HPPRequired]),
		SessionID:     req.SessionID,
		CreatedAt:     now.UTC(),
	}
}

func checklistFrom(id string, req flow.Request, now time.Time) (Checklist, error) {
	c := Checklist{ID: id, ContractID: req.ParentID, SessionID: req.SessionID, CreatedAt: now.UTC()}
	dates := map[field.Name]*time.Time{
		field.DateOfSignature:     &c.DateOfSignature,
		field.EffectiveDate:       &c.EffectiveDate,
		field.ExpirationDate:      &c.ExpirationDate,
		field.FlowDownDate:        &c.FlowDownDate,
		field.PriceExpirationDate: &c.PriceExpirationDate,
	}
	for name, dst := range dates {
		t, err := validation.ParseDate(req.Fields[name])
		if err != nil {
			return Checklist{}, fmt.Errorf("%s is not a valid date", name.Display())
		}
		*dst = t
	}
	return c, nil
}

func yes(v string) bool {
	b, _ := validation.ParseYesNo(v)
	return b
}
