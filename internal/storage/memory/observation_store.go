package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu     sync.RWMutex
	byAddr map[string][]domain.MarketCapObservation
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{byAddr: make(map[string][]domain.MarketCapObservation)}
}

// InsertBulk appends observations.
func (s *ObservationStore) InsertBulk(_ context.Context, obs []domain.MarketCapObservation) error {
	for _, o := range obs {
		if o.TokenAddress == "" || o.CycleID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range obs {
		s.byAddr[o.TokenAddress] = append(s.byAddr[o.TokenAddress], o)
	}
	return nil
}

// GetByToken returns an address's observations within [start, end].
func (s *ObservationStore) GetByToken(_ context.Context, tokenAddress string, start, end time.Time) ([]domain.MarketCapObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MarketCapObservation
	for _, o := range s.byAddr[tokenAddress] {
		if !o.ObservedAt.Before(start) && !o.ObservedAt.After(end) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out, nil
}

var _ storage.ObservationStore = (*ObservationStore)(nil)
