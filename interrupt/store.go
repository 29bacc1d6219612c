package interrupt

import (
	"context"
	"sync"
)

// DurableStore is the narrow persistence contract the manager needs:
// insert, lookup by execution id, overwrite by execution id. No cross-key
// transactional guarantees are required. Implementations return ErrNotFound
// (possibly wrapped) for absent records.
type DurableStore interface {
	Insert(ctx context.Context, rec *Interrupt) error
	GetByExecutionID(ctx context.Context, executionID string) (*Interrupt, error)
	UpdateByExecutionID(ctx context.Context, rec *Interrupt) error
}

// MemoryStore is a map-backed DurableStore. It is durable only for the
// lifetime of the process; production deployments use the Redis or GORM
// stores and keep this one for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Interrupt
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Interrupt)}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Interrupt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ExecutionID] = rec.clone()
	return nil
}

func (s *MemoryStore) GetByExecutionID(ctx context.Context, executionID string) (*Interrupt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) UpdateByExecutionID(ctx context.Context, rec *Interrupt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ExecutionID]; !ok {
		return ErrNotFound
	}
	s.records[rec.ExecutionID] = rec.clone()
	return nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
