package scheduler

import (
	"context"
	"log/slog"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/observability"
	"milestone-bot/internal/storage"
)

// CycleListener is notified after every completed cycle.
type CycleListener interface {
	CycleCompleted(ctx context.Context, stats domain.CycleStats)
}

// ListenerFunc adapts a function to CycleListener.
type ListenerFunc func(ctx context.Context, stats domain.CycleStats)

// CycleCompleted calls f.
func (f ListenerFunc) CycleCompleted(ctx context.Context, stats domain.CycleStats) {
	f(ctx, stats)
}

// PersistRuns returns a listener that appends finished cycles to store.
// Failures are logged.
func PersistRuns(store storage.CycleRunStore, logger *slog.Logger) CycleListener {
	if logger == nil {
		logger = observability.Discard()
	}
	logger = logger.With("component", "cycle_runs")
	return ListenerFunc(func(ctx context.Context, stats domain.CycleStats) {
		run, ok := domain.NewCycleRun(stats)
		if !ok {
			return
		}
		if err := store.Insert(ctx, run); err != nil {
			logger.Warn("persist cycle run failed", "cycle_id", run.CycleID, "error", err)
		}
	})
}
