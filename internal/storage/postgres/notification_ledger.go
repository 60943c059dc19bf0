package postgres

import (
	"context"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// NotificationLedger implements storage.NotificationLedger using the
// milestone_notifications table.
type NotificationLedger struct {
	pool *Pool
}

// NewNotificationLedger creates a new NotificationLedger.
func NewNotificationLedger(pool *Pool) *NotificationLedger {
	return &NotificationLedger{pool: pool}
}

// Compile-time interface check.
var _ storage.NotificationLedger = (*NotificationLedger)(nil)

// WasNotified reports whether (group, tokenID, value) has been recorded.
func (l *NotificationLedger) WasNotified(ctx context.Context, group domain.Group, tokenID int64, value float64) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM milestone_notifications
			WHERE group_name = $1 AND token_id = $2 AND milestone_value = $3
		)
	`, string(group), tokenID, value).Scan(&exists)
	if err != nil {
		return false, dataSourceError("check notification", err)
	}
	return exists, nil
}

// Record appends a notification. Returns ErrDuplicateKey if the pair exists.
func (l *NotificationLedger) Record(ctx context.Context, n *domain.MilestoneNotification) error {
	if n == nil || n.Group == "" {
		return storage.ErrInvalidInput
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO milestone_notifications (
			token_id, token_address, group_name, milestone_value, milestone_label, notified_at_utc, message_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		n.TokenID,
		n.TokenAddress,
		string(n.Group),
		n.MilestoneValue,
		n.MilestoneLabel,
		n.NotifiedAt,
		n.MessageID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return dataSourceError("record notification", err)
	}
	return nil
}

// ListByToken returns a token's notifications ordered by notified_at ASC.
func (l *NotificationLedger) ListByToken(ctx context.Context, group domain.Group, tokenID int64) ([]domain.MilestoneNotification, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, token_id, token_address, group_name, milestone_value, milestone_label, notified_at_utc, message_id
		FROM milestone_notifications
		WHERE group_name = $1 AND token_id = $2
		ORDER BY notified_at_utc ASC, id ASC
	`, string(group), tokenID)
	if err != nil {
		return nil, dataSourceError("list notifications", err)
	}
	defer rows.Close()

	var out []domain.MilestoneNotification
	for rows.Next() {
		var (
			n     domain.MilestoneNotification
			gname string
		)
		if err := rows.Scan(&n.ID, &n.TokenID, &n.TokenAddress, &gname,
			&n.MilestoneValue, &n.MilestoneLabel, &n.NotifiedAt, &n.MessageID); err != nil {
			return nil, dataSourceError("scan notification", err)
		}
		n.Group = domain.Group(gname)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, dataSourceError("iterate notifications", err)
	}
	return out, nil
}
