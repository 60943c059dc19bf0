package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// MilestoneConfigStore is an in-memory implementation of storage.MilestoneConfigStore.
type MilestoneConfigStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]domain.MilestoneConfig
}

// NewMilestoneConfigStore creates a new in-memory milestone config store.
func NewMilestoneConfigStore() *MilestoneConfigStore {
	return &MilestoneConfigStore{
		nextID: 1,
		byID:   make(map[int64]domain.MilestoneConfig),
	}
}

// ListActive returns active milestones for a group, ascending by value.
func (s *MilestoneConfigStore) ListActive(_ context.Context, group domain.Group) ([]domain.MilestoneConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MilestoneConfig
	for _, c := range s.byID {
		if c.Group == group && c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// GetByID returns a milestone by id. Returns ErrNotFound if not exists.
func (s *MilestoneConfigStore) GetByID(_ context.Context, id int64) (*domain.MilestoneConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Create inserts a milestone and assigns its id.
func (s *MilestoneConfigStore) Create(_ context.Context, cfg *domain.MilestoneConfig) (*domain.MilestoneConfig, error) {
	if cfg == nil || cfg.Group == "" || cfg.Value <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.byID {
		if c.IsActive && c.Group == cfg.Group && c.Value == cfg.Value {
			return nil, storage.ErrDuplicateKey
		}
	}

	created := *cfg
	created.ID = s.nextID
	created.IsActive = true
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = created.CreatedAt
	s.byID[created.ID] = created
	s.nextID++

	return &created, nil
}

// Deactivate marks a milestone inactive. Returns ErrNotFound if id does not exist.
func (s *MilestoneConfigStore) Deactivate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.IsActive = false
	c.UpdatedAt = time.Now().UTC()
	s.byID[id] = c
	return nil
}

var _ storage.MilestoneConfigStore = (*MilestoneConfigStore)(nil)
