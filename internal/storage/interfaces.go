package storage

import (
	"context"
	"time"

	"milestone-bot/internal/domain"
)

// TokenStore provides read access to a group's called tokens.
type TokenStore interface {
	// ListActive returns the group's tokens, most recently called first.
	ListActive(ctx context.Context, group domain.Group) ([]domain.Token, error)

	// HealthCheck returns nil when the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// MilestoneConfigStore provides access to milestones_config storage.
type MilestoneConfigStore interface {
	// ListActive returns active milestones for a group, ascending by value.
	ListActive(ctx context.Context, group domain.Group) ([]domain.MilestoneConfig, error)

	// GetByID returns a milestone by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.MilestoneConfig, error)

	// Create inserts a milestone. Returns ErrDuplicateKey if an active
	// milestone with the same (group, value) exists.
	Create(ctx context.Context, cfg *domain.MilestoneConfig) (*domain.MilestoneConfig, error)

	// Deactivate marks a milestone inactive. Returns ErrNotFound if id does not exist.
	Deactivate(ctx context.Context, id int64) error
}

// NotificationLedger records delivered milestone alerts.
// It is the durable source of truth for at-most-once delivery.
type NotificationLedger interface {
	// WasNotified reports whether (group, tokenID, value) has been recorded.
	WasNotified(ctx context.Context, group domain.Group, tokenID int64, value float64) (bool, error)

	// Record appends a notification. Returns ErrDuplicateKey if the pair exists.
	Record(ctx context.Context, n *domain.MilestoneNotification) error

	// ListByToken returns a token's notifications ordered by notified_at ASC.
	ListByToken(ctx context.Context, group domain.Group, tokenID int64) ([]domain.MilestoneNotification, error)
}

// ObservationStore provides access to market_cap_observations storage.
type ObservationStore interface {
	// InsertBulk appends observations from one group in one cycle.
	InsertBulk(ctx context.Context, obs []domain.MarketCapObservation) error

	// GetByToken returns an address's observations within [start, end], ordered by observed_at ASC.
	GetByToken(ctx context.Context, tokenAddress string, start, end time.Time) ([]domain.MarketCapObservation, error)
}

// CycleRunStore provides access to cycle_runs storage.
type CycleRunStore interface {
	// Insert appends a finished cycle. Returns ErrDuplicateKey if cycle_id exists.
	Insert(ctx context.Context, run domain.CycleRun) error

	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.CycleRun, error)
}
