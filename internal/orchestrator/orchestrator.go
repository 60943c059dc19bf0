// Package orchestrator runs polling cycles.
// It coordinates: token load → market cap fetch → guard → crossing tracker → alert
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"milestone-bot/internal/clock"
	"milestone-bot/internal/domain"
	"milestone-bot/internal/message"
	"milestone-bot/internal/milestone"
	"milestone-bot/internal/notifier"
	"milestone-bot/internal/observability"
	"milestone-bot/internal/provider"
	"milestone-bot/internal/storage"
)

// Defaults for unset Options. Threshold and ratio fall back when not
// positive (ratio when <= 1). AlertCooldown falls back only when negative;
// zero disables the cooldown.
const (
	DefaultConsecutiveThreshold = 3
	DefaultMaxCapChangeRatio    = 3.0
	DefaultAlertCooldown        = 300 * time.Second
)

// Orchestrator executes polling cycles.
// Crossing state (tracker, guard) lives for the lifetime of the instance.
type Orchestrator struct {
	// Ports
	groups       []domain.Group
	tokens       storage.TokenStore
	milestones   storage.MilestoneConfigStore
	ledger       storage.NotificationLedger
	provider     provider.Provider
	notifier     notifier.Notifier
	messages     *message.Builder
	observations storage.ObservationStore

	// Crossing state
	guard   *milestone.Guard
	tracker *milestone.Tracker

	clock   clock.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	stats domain.CycleStats
}

// Options for creating Orchestrator.
type Options struct {
	// Groups in processing order. Empty means domain.DefaultGroups.
	Groups []domain.Group

	// Required ports
	Tokens     storage.TokenStore
	Milestones storage.MilestoneConfigStore
	Ledger     storage.NotificationLedger
	Provider   provider.Provider
	Notifier   notifier.Notifier

	// Messages renders alerts. Nil uses the default template for every group.
	Messages *message.Builder

	// Observations receives every guarded reading. Optional.
	Observations storage.ObservationStore

	Clock                clock.Clock
	ConsecutiveThreshold int
	MaxCapChangeRatio    float64
	AlertCooldown        time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics // optional
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	groups := opts.Groups
	if len(groups) == 0 {
		groups = domain.DefaultGroups
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.ConsecutiveThreshold <= 0 {
		opts.ConsecutiveThreshold = DefaultConsecutiveThreshold
	}
	if opts.MaxCapChangeRatio <= 1 {
		opts.MaxCapChangeRatio = DefaultMaxCapChangeRatio
	}
	if opts.AlertCooldown < 0 { // zero means no cooldown
		opts.AlertCooldown = DefaultAlertCooldown
	}
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	if opts.Messages == nil {
		// Cannot fail: the default template is a constant.
		opts.Messages, _ = message.NewBuilder(nil)
	}

	return &Orchestrator{
		groups:       append([]domain.Group(nil), groups...),
		tokens:       opts.Tokens,
		milestones:   opts.Milestones,
		ledger:       opts.Ledger,
		provider:     opts.Provider,
		notifier:     opts.Notifier,
		messages:     opts.Messages,
		observations: opts.Observations,
		guard:        milestone.NewGuard(opts.MaxCapChangeRatio, opts.Clock),
		tracker:      milestone.NewTracker(opts.ConsecutiveThreshold, opts.AlertCooldown),
		clock:        opts.Clock,
		logger:       opts.Logger.With("component", "orchestrator"),
		metrics:      opts.Metrics,
	}
}

// CurrentStats returns a copy of the in-progress or last completed cycle.
func (o *Orchestrator) CurrentStats() domain.CycleStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return snapshot(o.stats)
}

// RunCycle executes one polling cycle over every group and returns the
// final stats. Failures are counted and logged, never returned.
// Callers must not run cycles concurrently; see package scheduler.
func (o *Orchestrator) RunCycle(ctx context.Context) domain.CycleStats {
	o.mu.Lock()
	o.stats = domain.CycleStats{
		CycleID:   uuid.NewString(),
		StartTime: o.clock.Now(),
	}
	cycleID := o.stats.CycleID
	o.mu.Unlock()

	log := o.logger.With("cycle_id", cycleID)
	log.Info("cycle started", "groups", len(o.groups))

	for _, g := range o.groups {
		if err := o.runGroup(ctx, log.With("group", g), cycleID, g); err != nil {
			o.count(func(s *domain.CycleStats) { s.Errors++ })
			o.metrics.RecordError(g, observability.StageGroup)
			log.Error("group failed", "group", g, "error", err)
		}
	}

	o.mu.Lock()
	end := o.clock.Now()
	o.stats.EndTime = &end
	o.stats.Duration = end.Sub(o.stats.StartTime)
	final := snapshot(o.stats)
	o.mu.Unlock()

	log.Info("cycle completed",
		"processed", final.Processed,
		"alerts_sent", final.AlertsSent,
		"skipped", final.Skipped,
		"errors", final.Errors,
		"duration", final.Duration)
	return final
}

// runGroup processes one group. A returned error, or a recovered panic,
// counts as one cycle error.
func (o *Orchestrator) runGroup(ctx context.Context, log *slog.Logger, cycleID string, g domain.Group) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	configs, err := o.milestones.ListActive(ctx, g)
	if err != nil {
		return fmt.Errorf("load milestones: %w", err)
	}
	if len(configs) == 0 {
		log.Warn("no active milestones, skipping group")
		return nil
	}
	policy := milestone.NewPolicy(configs)

	tokens, err := o.tokens.ListActive(ctx, g)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Info("no tokens")
		return nil
	}

	start := time.Now()
	caps, err := o.provider.Fetch(ctx, tokens)
	o.metrics.RecordFetch(o.provider.Name(), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("fetch market caps from %s: %w", o.provider.Name(), err)
	}
	log.Debug("market caps fetched", "tokens", len(tokens), "caps", len(caps))

	observations := make([]domain.MarketCapObservation, 0, len(tokens))
	for _, t := range tokens {
		obs, err := o.runToken(ctx, log, g, policy, t, caps)
		if obs != nil {
			obs.CycleID = cycleID
			observations = append(observations, *obs)
		}
		if err != nil {
			o.count(func(s *domain.CycleStats) { s.Errors++ })
			o.metrics.RecordError(g, observability.StageToken)
			log.Error("token failed", "token_id", t.ID, "token_address", t.TokenAddress, "error", err)
		}
	}

	o.storeObservations(ctx, log, observations)
	return nil
}

// runToken evaluates one token. It returns the guarded reading for
// analytics, nil when the provider had no value.
func (o *Orchestrator) runToken(
	ctx context.Context,
	log *slog.Logger,
	g domain.Group,
	policy *milestone.Policy,
	t domain.Token,
	caps map[string]float64,
) (obs *domain.MarketCapObservation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	o.count(func(s *domain.CycleStats) { s.Processed++ })
	o.metrics.RecordProcessed(g)

	current, ok := caps[t.TokenAddress]
	if !ok || current <= 0 {
		o.count(func(s *domain.CycleStats) { s.Skipped++ })
		o.metrics.RecordSkipped(g, observability.SkipNoMarketCap)
		log.Warn("no market cap", "token_id", t.ID, "token_address", t.TokenAddress)
		return nil, nil
	}

	now := o.clock.Now()
	_, accepted := o.guard.Validate(t.TokenAddress, current)
	obs = &domain.MarketCapObservation{
		Group:        g,
		TokenID:      t.ID,
		TokenAddress: t.TokenAddress,
		ObservedAt:   now,
		MarketCapUSD: current,
		Multiple:     policy.Multiple(t.InitialMarketCapUSD, current),
		Accepted:     accepted,
	}
	if !accepted {
		o.count(func(s *domain.CycleStats) { s.Skipped++ })
		o.metrics.RecordSkipped(g, observability.SkipGuardRejected)
		last, _ := o.guard.LastKnown(t.TokenAddress)
		log.Warn("market cap rejected by guard",
			"token_id", t.ID,
			"token_address", t.TokenAddress,
			"market_cap", current,
			"last_known", last.Value)
		return obs, nil
	}

	tokenKey := milestone.TokenKey{Group: g, TokenID: t.ID}
	if o.tracker.InCooldown(tokenKey, now) {
		return obs, nil
	}

	for _, m := range policy.Milestones() {
		key := milestone.CrossingKey{Group: g, TokenID: t.ID, Value: m.Value}
		crossed := policy.IsCrossed(t.InitialMarketCapUSD, current, m)
		count, confirmed := o.tracker.Observe(key, crossed)
		if crossed {
			log.Debug("milestone crossed",
				"token_id", t.ID, "milestone", m.Value,
				"count", count, "threshold", o.tracker.Threshold())
		}
		if !confirmed {
			continue
		}
		if o.alert(ctx, log, g, t, m, current, key, tokenKey) {
			// Cooldown is active now, remaining milestones wait for it.
			break
		}
	}
	return obs, nil
}

// alert attempts delivery of a confirmed crossing and reports whether a
// message was delivered.
func (o *Orchestrator) alert(
	ctx context.Context,
	log *slog.Logger,
	g domain.Group,
	t domain.Token,
	m domain.MilestoneConfig,
	current float64,
	key milestone.CrossingKey,
	tokenKey milestone.TokenKey,
) bool {
	log = log.With("token_id", t.ID, "token_address", t.TokenAddress, "milestone", m.Value)

	notified, err := o.ledger.WasNotified(ctx, g, t.ID, m.Value)
	if err != nil {
		o.alertError(g, observability.StageLedger)
		log.Error("ledger lookup failed", "error", err)
		return false
	}
	if notified {
		o.tracker.Reset(key)
		log.Debug("already notified")
		return false
	}

	text, err := o.messages.Build(g, t, m, current)
	if err != nil {
		o.alertError(g, observability.StageRender)
		log.Error("render alert failed", "error", err)
		return false
	}

	start := time.Now()
	messageID, err := o.notifier.Send(ctx, g, text)
	o.metrics.RecordSend(time.Since(start))
	if err != nil {
		o.alertError(g, observability.StageNotify)
		log.Error("send alert failed", "error", err, "kind", domain.KindOf(err))
		return false
	}

	now := o.clock.Now()
	o.tracker.StartCooldown(tokenKey, now)
	o.count(func(s *domain.CycleStats) { s.AlertsSent++ })
	o.metrics.RecordAlert(g)

	n := &domain.MilestoneNotification{
		TokenID:        t.ID,
		TokenAddress:   t.TokenAddress,
		Group:          g,
		MilestoneValue: m.Value,
		MilestoneLabel: m.Label,
		NotifiedAt:     now,
	}
	if messageID != "" {
		n.MessageID = &messageID
	}
	if err := o.ledger.Record(ctx, n); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			o.tracker.Reset(key)
			log.Warn("alert already recorded", "message_id", messageID)
			return true
		}
		// Delivered but not recorded: the pair stays confirmed and is
		// alerted again once the cooldown lifts.
		o.alertError(g, observability.StageRecord)
		log.Error("record notification failed", "message_id", messageID, "error", err)
		return true
	}

	o.tracker.Reset(key)
	log.Info("milestone alert sent",
		"symbol", t.Symbol,
		"label", m.Label,
		"market_cap", current,
		"message_id", messageID)
	return true
}

func (o *Orchestrator) alertError(g domain.Group, stage string) {
	o.count(func(s *domain.CycleStats) { s.Errors++ })
	o.metrics.RecordError(g, stage)
}

func (o *Orchestrator) storeObservations(ctx context.Context, log *slog.Logger, obs []domain.MarketCapObservation) {
	if o.observations == nil || len(obs) == 0 {
		return
	}
	if err := o.observations.InsertBulk(ctx, obs); err != nil {
		log.Warn("store observations failed", "count", len(obs), "error", err)
	}
}

// count applies fn to the live stats under the lock.
func (o *Orchestrator) count(fn func(*domain.CycleStats)) {
	o.mu.Lock()
	fn(&o.stats)
	o.mu.Unlock()
}

func snapshot(s domain.CycleStats) domain.CycleStats {
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	return s
}
