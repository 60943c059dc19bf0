package memory

import (
	"context"
	"sort"
	"sync"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

type ledgerKey struct {
	group   domain.Group
	tokenID int64
	value   float64
}

// NotificationLedger is an in-memory implementation of storage.NotificationLedger.
// State does not survive restarts; use the postgres ledger in production.
type NotificationLedger struct {
	mu      sync.RWMutex
	nextID  int64
	records map[ledgerKey]domain.MilestoneNotification
}

// NewNotificationLedger creates a new in-memory ledger.
func NewNotificationLedger() *NotificationLedger {
	return &NotificationLedger{
		nextID:  1,
		records: make(map[ledgerKey]domain.MilestoneNotification),
	}
}

// WasNotified reports whether the pair has been recorded.
func (l *NotificationLedger) WasNotified(_ context.Context, group domain.Group, tokenID int64, value float64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[ledgerKey{group, tokenID, value}]
	return ok, nil
}

// Record appends a notification. Returns ErrDuplicateKey if the pair exists.
func (l *NotificationLedger) Record(_ context.Context, n *domain.MilestoneNotification) error {
	if n == nil || n.Group == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{n.Group, n.TokenID, n.MilestoneValue}
	if _, exists := l.records[k]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *n
	rec.ID = l.nextID
	l.nextID++
	l.records[k] = rec
	return nil
}

// ListByToken returns a token's notifications ordered by notified_at ASC.
func (l *NotificationLedger) ListByToken(_ context.Context, group domain.Group, tokenID int64) ([]domain.MilestoneNotification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.MilestoneNotification
	for k, n := range l.records {
		if k.group == group && k.tokenID == tokenID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NotifiedAt.Equal(out[j].NotifiedAt) {
			return out[i].NotifiedAt.Before(out[j].NotifiedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ storage.NotificationLedger = (*NotificationLedger)(nil)
