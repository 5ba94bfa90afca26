package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Ledger.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	nowFunc func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		nowFunc: time.Now,
	}
}

func (m *MemoryStore) Put(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.Reference]; exists {
		return ErrConditionFailed
	}
	now := m.nowFunc().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[rec.Reference] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, reference string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, reference, expectedStatus, newStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok || rec.Status != expectedStatus {
		return ErrStatusMismatch
	}
	rec.Status = newStatus
	rec.UpdatedAt = m.nowFunc().UTC()
	m.records[reference] = rec
	return nil
}
