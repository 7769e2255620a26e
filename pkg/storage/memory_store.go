package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/clausewise/clausewise/pkg/domain"
)

// MemoryStore is an in-memory implementation of AuditStore. Runs are stored
// as deep copies so callers cannot mutate stored state through returned
// pointers.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.AuditRun
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*domain.AuditRun)}
}

// LoadAuditRun retrieves a run by policy id.
func (s *MemoryStore) LoadAuditRun(_ context.Context, policyID string) (*domain.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[policyID]
	if !ok {
		return nil, fmt.Errorf("%w: policy %s", domain.ErrRunNotFound, policyID)
	}
	return cloneRun(run)
}

// SaveAuditRun stores a copy of the run keyed by policy id.
func (s *MemoryStore) SaveAuditRun(_ context.Context, run *domain.AuditRun) error {
	copied, err := cloneRun(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.PolicyID] = copied
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func cloneRun(run *domain.AuditRun) (*domain.AuditRun, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("storage: clone run: %w", err)
	}
	var out domain.AuditRun
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("storage: clone run: %w", err)
	}
	return &out, nil
}
