// Package notifier delivers rendered alerts to a group's channel.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"milestone-bot/internal/domain"
)

// Notifier sends a rendered message to a group's channel and returns the
// channel's message id. Delivery failures must be returned, never dropped.
type Notifier interface {
	Send(ctx context.Context, group domain.Group, text string) (string, error)
	HealthCheck(ctx context.Context) error
}

// Log is a Notifier that writes messages to the log. Used in memory mode.
type Log struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewLog creates a logging notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notifier")}
}

var _ Notifier = (*Log)(nil)

// Send logs the message.
func (l *Log) Send(_ context.Context, group domain.Group, text string) (string, error) {
	id := fmt.Sprintf("log-%d", l.seq.Add(1))
	l.logger.Info("alert", "group", group, "message_id", id, "text", text)
	return id, nil
}

// HealthCheck always succeeds.
func (l *Log) HealthCheck(context.Context) error {
	return nil
}
