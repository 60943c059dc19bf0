// Package health aggregates component checks into a service status.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"milestone-bot/internal/clock"
	"milestone-bot/internal/domain"
)

// Status is the aggregated service status.
type Status string

const (
	StatusHealthy   Status = "healthy"   // every component passed
	StatusDegraded  Status = "degraded"  // some components passed
	StatusUnhealthy Status = "unhealthy" // no component passed
)

// Component check results.
const (
	ComponentOK   = "ok"
	ComponentDown = "down"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 5 * time.Second

// HealthChecker is implemented by providers, stores and notifiers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsSource exposes the in-progress or last completed cycle.
type StatsSource interface {
	CurrentStats() domain.CycleStats
}

// Report is the health view served to operators.
type Report struct {
	Status      Status            `json:"status"`
	Uptime      string            `json:"uptime"`
	LastCycleAt *time.Time        `json:"last_cycle_at,omitempty"`
	Provider    string            `json:"provider"`
	Stats       StatsView         `json:"stats"`
	Components  map[string]string `json:"components"`
}

// Options for creating Checker.
type Options struct {
	Components map[string]HealthChecker // name -> check, e.g. "provider"
	Stats      StatsSource              // optional
	Provider   string
	Clock      clock.Clock
	Timeout    time.Duration
}

// Checker runs component checks and builds reports.
type Checker struct {
	components map[string]HealthChecker
	stats      StatsSource
	provider   string
	clock      clock.Clock
	timeout    time.Duration
	started    time.Time

	mu        sync.Mutex
	lastCycle *time.Time
}

// NewChecker creates a Checker. Uptime is measured from this call.
func NewChecker(opts Options) *Checker {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	components := make(map[string]HealthChecker, len(opts.Components))
	for name, c := range opts.Components {
		if c != nil {
			components[name] = c
		}
	}
	return &Checker{
		components: components,
		stats:      opts.Stats,
		provider:   opts.Provider,
		clock:      opts.Clock,
		timeout:    opts.Timeout,
		started:    opts.Clock.Now(),
	}
}

// MarkCycle records the completion time of a cycle.
func (c *Checker) MarkCycle(at time.Time) {
	c.mu.Lock()
	c.lastCycle = &at
	c.mu.Unlock()
}

// LastCycle returns the last MarkCycle time.
func (c *Checker) LastCycle() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCycle == nil {
		return time.Time{}, false
	}
	return *c.lastCycle, true
}

// Check runs every component check concurrently. It never fails: a check
// that errors, panics or times out marks its component down.
func (c *Checker) Check(ctx context.Context) Report {
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		check := c.components[name]
		g.Go(func() error {
			results[i] = c.run(gCtx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusHealthy,
		Uptime:     c.clock.Now().Sub(c.started).Truncate(time.Second).String(),
		Provider:   c.provider,
		Components: make(map[string]string, len(names)),
	}
	if at, ok := c.LastCycle(); ok {
		report.LastCycleAt = &at
	}
	if c.stats != nil {
		report.Stats = NewStatsView(c.stats.CurrentStats())
	}

	passed := 0
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i] == ComponentOK {
			passed++
		}
	}
	report.Status = aggregate(passed, len(names))
	return report
}

// run bounds a check by the timeout even when the component ignores ctx.
// A check that never returns leaks its goroutine, the report does not wait.
func (c *Checker) run(ctx context.Context, check HealthChecker) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ComponentDown
			}
		}()
		if err := check.HealthCheck(ctx); err != nil {
			done <- ComponentDown
			return
		}
		done <- ComponentOK
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return ComponentDown
	}
}

func aggregate(passed, total int) Status {
	switch {
	case passed == total:
		return StatusHealthy
	case passed == 0:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}
