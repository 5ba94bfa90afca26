package sessions

import (
	"context"
	"sync"
)

// MemoryRepository keeps sessions in process memory. State is lost on restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[int64]Session)}
}

func (m *MemoryRepository) Get(ctx context.Context, userID int64) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryRepository) Put(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.UserID] = s
	return nil
}
