package domain

import "time"

// MilestoneConfig is a configured multiple-of-initial-cap threshold.
// Corresponds to milestones_config table.
type MilestoneConfig struct {
	ID        int64
	Group     Group
	Value     float64 // multiple > 0, 2 means 2x
	Label     string  // display label, e.g. "2x"
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy *string // nullable
	Notes     *string // nullable
}

// MilestoneNotification records a (token, milestone) pair as alerted.
// Corresponds to milestone_notifications table, the durable source of
// truth for at-most-once delivery.
type MilestoneNotification struct {
	ID             int64
	TokenID        int64
	TokenAddress   string
	Group          Group
	MilestoneValue float64
	MilestoneLabel string
	NotifiedAt     time.Time
	MessageID      *string // notifier message id, nullable
}
