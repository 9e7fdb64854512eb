package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/szaher/contractbot/internal/flow"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	contracts  map[string]Contract
	checklists map[string][]Checklist
	now        func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]Account),
		contracts:  make(map[string]Contract),
		checklists: make(map[string][]Checklist),
		now:        time.Now,
	}
}

// Execute records a completed flow.
func (m *MemoryStore) Execute(ctx context.Context, req flow.Request) (flow.Completion, error) {
	return execute(ctx, m, req, m.now())
}

// ValidateIdentifier reports whether an active account exists.
func (m *MemoryStore) ValidateIdentifier(ctx context.Context, kind, value string) (bool, error) {
	return validateIdentifier(ctx, m, kind, value)
}

func (m *MemoryStore) UpsertAccount(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Number] = a
	return nil
}

func (m *MemoryStore) Contract(_ context.Context, id string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) Checklists(_ context.Context, contractID string) ([]Checklist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Checklist(nil), m.checklists[contractID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) accountActive(_ context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[number]
	return ok && a.Active, nil
}

func (m *MemoryStore) contractExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.contracts[id]
	return ok, nil
}

func (m *MemoryStore) insertContract(_ context.Context, c Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
	return nil
}

func (m *MemoryStore) insertChecklist(_ context.Context, c Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checklists[c.ContractID] = append(m.checklists[c.ContractID], c)
	return nil
}
