package memory

import (
	"context"
	"sort"
	"sync"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// CycleRunStore is an in-memory implementation of storage.CycleRunStore.
type CycleRunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.CycleRun
}

// NewCycleRunStore creates a new in-memory cycle run store.
func NewCycleRunStore() *CycleRunStore {
	return &CycleRunStore{runs: make(map[string]domain.CycleRun)}
}

// Insert appends a finished cycle. Returns ErrDuplicateKey if cycle_id exists.
func (s *CycleRunStore) Insert(_ context.Context, run domain.CycleRun) error {
	if run.CycleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.CycleID]; exists {
		return storage.ErrDuplicateKey
	}
	s.runs[run.CycleID] = run
	return nil
}

// ListRecent returns up to limit runs, newest first.
func (s *CycleRunStore) ListRecent(_ context.Context, limit int) ([]domain.CycleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CycleRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ storage.CycleRunStore = (*CycleRunStore)(nil)
