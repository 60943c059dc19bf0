package memory

import (
	"context"
	"sort"
	"sync"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// DefaultTokenLimit bounds ListActive results.
const DefaultTokenLimit = 100

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu      sync.RWMutex
	limit   int
	byGroup map[domain.Group]map[int64]domain.Token
}

// NewTokenStore creates a token store returning at most limit tokens per group.
func NewTokenStore(limit int) *TokenStore {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}
	return &TokenStore{
		limit:   limit,
		byGroup: make(map[domain.Group]map[int64]domain.Token),
	}
}

// Add inserts tokens into a group. Returns ErrDuplicateKey if an id exists in the group.
func (s *TokenStore) Add(_ context.Context, group domain.Group, tokens ...domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.byGroup[group]
	if !ok {
		byID = make(map[int64]domain.Token)
		s.byGroup[group] = byID
	}

	// Validate whole batch first
	seen := make(map[int64]bool, len(tokens))
	for _, t := range tokens {
		if t.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := byID[t.ID]; exists || seen[t.ID] {
			return storage.ErrDuplicateKey
		}
		seen[t.ID] = true
	}

	for _, t := range tokens {
		byID[t.ID] = t
	}
	return nil
}

// ListActive returns the group's tokens, most recently called first.
func (s *TokenStore) ListActive(_ context.Context, group domain.Group) ([]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.byGroup[group]
	out := make([]domain.Token, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstCalledAt.Equal(out[j].FirstCalledAt) {
			return out[i].FirstCalledAt.After(out[j].FirstCalledAt)
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > s.limit {
		out = out[:s.limit]
	}
	return out, nil
}

// HealthCheck always succeeds.
func (s *TokenStore) HealthCheck(_ context.Context) error {
	return nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
