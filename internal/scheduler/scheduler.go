// Package scheduler runs polling cycles periodically and on demand,
// with at most one cycle in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/observability"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 60 * time.Second

// CycleRunner executes one polling cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) domain.CycleStats
}

// CycleMarker receives the completion time of every cycle.
type CycleMarker interface {
	MarkCycle(at time.Time)
}

// Options for creating Scheduler.
type Options struct {
	Runner   CycleRunner
	Interval time.Duration

	// WaitForFirstTick delays the first periodic cycle by one interval
	// instead of running it at Start.
	WaitForFirstTick bool

	Health    CycleMarker // optional
	Listeners []CycleListener
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Scheduler triggers cycles. Trigger and periodic ticks share one guard.
type Scheduler struct {
	runner    CycleRunner
	interval  time.Duration
	wait      bool
	health    CycleMarker
	listeners []CycleListener
	metrics   *observability.Metrics
	logger    *slog.Logger

	cron    *gocron.Scheduler
	running atomic.Bool
	started atomic.Bool
}

// New creates a Scheduler. It does not start the periodic job.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	return &Scheduler{
		runner:    opts.Runner,
		interval:  opts.Interval,
		wait:      opts.WaitForFirstTick,
		health:    opts.Health,
		listeners: append([]CycleListener(nil), opts.Listeners...),
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "scheduler"),
		cron:      gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the periodic cycle. Periodic cycles run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}

	secs := int(s.interval / time.Second)
	if secs < 1 {
		secs = 1
	}
	if s.wait {
		s.cron.WaitForScheduleAll()
	}
	s.cron.SingletonModeAll()
	if _, err := s.cron.Every(secs).Seconds().Do(s.tick, ctx); err != nil {
		return fmt.Errorf("schedule polling cycle: %w", err)
	}
	s.cron.StartAsync()

	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop stops periodic cycles. A cycle in flight is not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Interval returns the poll interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Trigger runs a cycle now. It returns false without running anything
// when a cycle is already in flight.
func (s *Scheduler) Trigger(ctx context.Context) (domain.CycleStats, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordCycleSkipped()
		return domain.CycleStats{}, false
	}
	defer s.running.Store(false)

	stats := s.runner.RunCycle(ctx)
	s.completed(ctx, stats)
	return stats, true
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, ok := s.Trigger(ctx); !ok {
		s.logger.Warn("polling cycle already running, skipping tick")
	}
}

func (s *Scheduler) completed(ctx context.Context, stats domain.CycleStats) {
	if stats.EndTime != nil && s.health != nil {
		s.health.MarkCycle(*stats.EndTime)
	}
	if stats.Duration > s.interval {
		s.metrics.RecordOverrun()
		s.logger.Warn("polling cycle overran interval",
			"cycle_id", stats.CycleID,
			"duration", stats.Duration,
			"interval", s.interval)
	}
	s.metrics.RecordCycle(stats)

	for _, l := range s.listeners {
		s.notify(ctx, l, stats)
	}
}

func (s *Scheduler) notify(ctx context.Context, l CycleListener, stats domain.CycleStats) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle listener panicked", "cycle_id", stats.CycleID, "panic", r)
		}
	}()
	l.CycleCompleted(ctx, stats)
}
