package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milestone-bot/internal/clock"
	"milestone-bot/internal/domain"
	"milestone-bot/internal/milestone"
	"milestone-bot/internal/storage"
	"milestone-bot/internal/storage/memory"
)

const groupA domain.Group = "A"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedProvider returns caps[i] on the i-th fetch, repeating the last entry.
type scriptedProvider struct {
	mu    sync.Mutex
	caps  []map[string]float64
	err   error
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Fetch(_ context.Context, _ []domain.Token) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.caps) == 0 {
		return map[string]float64{}, nil
	}
	i := p.calls - 1
	if i >= len(p.caps) {
		i = len(p.caps) - 1
	}
	return p.caps[i], nil
}

func (p *scriptedProvider) HealthCheck(context.Context) error { return nil }

type sentMessage struct {
	group domain.Group
	text  string
}

// fakeNotifier records sends. The first failures sends return err.
type fakeNotifier struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures int
	err      error
	panicOn  string
}

func (n *fakeNotifier) Send(_ context.Context, group domain.Group, text string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panicOn != "" && strings.Contains(text, n.panicOn) {
		panic("notifier exploded")
	}
	if n.failures > 0 {
		n.failures--
		return "", n.err
	}
	n.sent = append(n.sent, sentMessage{group: group, text: text})
	return "msg-1", nil
}

func (n *fakeNotifier) HealthCheck(context.Context) error { return nil }

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// spyLedger counts Record calls and can fail them.
type spyLedger struct {
	*memory.NotificationLedger
	records   int
	recordErr error
	lookupErr error
}

func (l *spyLedger) WasNotified(ctx context.Context, g domain.Group, id int64, v float64) (bool, error) {
	if l.lookupErr != nil {
		return false, l.lookupErr
	}
	return l.NotificationLedger.WasNotified(ctx, g, id, v)
}

func (l *spyLedger) Record(ctx context.Context, n *domain.MilestoneNotification) error {
	l.records++
	if l.recordErr != nil {
		return l.recordErr
	}
	return l.NotificationLedger.Record(ctx, n)
}

// spyMilestones records the groups it was asked for and fails for some.
type spyMilestones struct {
	*memory.MilestoneConfigStore
	mu     sync.Mutex
	asked  []domain.Group
	failOn map[domain.Group]error
}

func (s *spyMilestones) ListActive(ctx context.Context, g domain.Group) ([]domain.MilestoneConfig, error) {
	s.mu.Lock()
	s.asked = append(s.asked, g)
	s.mu.Unlock()
	if err := s.failOn[g]; err != nil {
		return nil, err
	}
	return s.MilestoneConfigStore.ListActive(ctx, g)
}

// spyTokens counts ListActive calls.
type spyTokens struct {
	*memory.TokenStore
	calls int
}

func (s *spyTokens) ListActive(ctx context.Context, g domain.Group) ([]domain.Token, error) {
	s.calls++
	return s.TokenStore.ListActive(ctx, g)
}

type fixture struct {
	clk          *clock.Fake
	tokens       *spyTokens
	milestones   *spyMilestones
	ledger       *spyLedger
	provider     *scriptedProvider
	notifier     *fakeNotifier
	observations *memory.ObservationStore
}

func newFixture() *fixture {
	return &fixture{
		clk:          clock.NewFake(t0),
		tokens:       &spyTokens{TokenStore: memory.NewTokenStore(0)},
		milestones:   &spyMilestones{MilestoneConfigStore: memory.NewMilestoneConfigStore()},
		ledger:       &spyLedger{NotificationLedger: memory.NewNotificationLedger()},
		provider:     &scriptedProvider{},
		notifier:     &fakeNotifier{},
		observations: memory.NewObservationStore(),
	}
}

func (f *fixture) orchestrator(groups []domain.Group, threshold int, cooldown time.Duration) *Orchestrator {
	return New(Options{
		Groups:               groups,
		Tokens:               f.tokens,
		Milestones:           f.milestones,
		Ledger:               f.ledger,
		Provider:             f.provider,
		Notifier:             f.notifier,
		Observations:         f.observations,
		Clock:                f.clk,
		ConsecutiveThreshold: threshold,
		MaxCapChangeRatio:    3,
		AlertCooldown:        cooldown,
	})
}

func (f *fixture) addMilestone(t *testing.T, g domain.Group, value float64, label string) {
	t.Helper()
	_, err := f.milestones.Create(context.Background(), &domain.MilestoneConfig{Group: g, Value: value, Label: label})
	require.NoError(t, err)
}

func (f *fixture) addToken(t *testing.T, g domain.Group, id int64, addr string, initial float64) {
	t.Helper()
	err := f.tokens.Add(context.Background(), g, domain.Token{
		ID:                  id,
		TokenAddress:        addr,
		Symbol:              "TKN",
		InitialMarketCapUSD: initial,
		FirstCalledAt:       t0.Add(-time.Hour),
	})
	require.NoError(t, err)
}

func caps(values ...float64) []map[string]float64 {
	out := make([]map[string]float64, len(values))
	for i, v := range values {
		out[i] = map[string]float64{"tokenA": v}
	}
	return out
}

func crossingKey(g domain.Group, tokenID int64, value float64) milestone.CrossingKey {
	return milestone.CrossingKey{Group: g, TokenID: tokenID, Value: value}
}

// runCycles runs n cycles advancing the clock by step after each one.
func runCycles(o *Orchestrator, clk *clock.Fake, n int, step time.Duration) []domain.CycleStats {
	out := make([]domain.CycleStats, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, o.RunCycle(context.Background()))
		clk.Advance(step)
	}
	return out
}

func TestRunCycle_AlertOnThirdConsecutiveCrossing(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(2_000_000, 2_000_000, 2_000_000)
	o := f.orchestrator([]domain.Group{groupA}, 3, 300*time.Second)

	stats := runCycles(o, f.clk, 3, time.Minute)

	assert.Equal(t, 0, stats[0].AlertsSent)
	assert.Equal(t, 0, stats[1].AlertsSent)
	assert.Equal(t, 1, stats[2].AlertsSent)
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 1, f.ledger.records)
	for _, s := range stats {
		assert.Equal(t, 1, s.Processed)
		assert.Equal(t, 0, s.Errors)
		assert.True(t, s.Finished())
	}

	notified, err := f.ledger.WasNotified(context.Background(), groupA, 1, 2)
	require.NoError(t, err)
	assert.True(t, notified)
}

func TestRunCycle_GuardRejectionDoesNotCount(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	// 500K against 2M is a ratio of 0.25, outside [1/3, 3].
	f.provider.caps = caps(2_000_000, 500_000, 2_000_000, 2_000_000, 2_000_000)
	o := f.orchestrator([]domain.Group{groupA}, 3, 300*time.Second)

	stats := runCycles(o, f.clk, 4, time.Minute)

	assert.Equal(t, 1, stats[1].Skipped, "rejected reading is skipped")
	assert.Equal(t, 0, stats[2].AlertsSent)
	assert.Equal(t, 1, stats[3].AlertsSent, "crossings counted at cycles 1, 3 and 4")
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 0, o.tracker.Count(crossingKey(groupA, 1, 2)))
}

func TestRunCycle_GroupFailureIsolated(t *testing.T) {
	f := newFixture()
	f.milestones.failOn = map[domain.Group]error{groupA: errors.New("connection refused")}
	f.addMilestone(t, "B", 2, "2x")
	o := f.orchestrator([]domain.Group{groupA, "B"}, 3, 0)

	stats := o.RunCycle(context.Background())

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, []domain.Group{groupA, "B"}, f.milestones.asked)
	assert.Equal(t, 1, f.tokens.calls, "group B tokens were loaded")
}

func TestRunCycle_NoMilestonesSkipsGroup(t *testing.T) {
	f := newFixture()
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	o := f.orchestrator([]domain.Group{groupA}, 3, 0)

	stats := o.RunCycle(context.Background())

	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, f.tokens.calls)
	assert.Equal(t, 0, f.provider.calls)
}

func TestRunCycle_FalseCycleRestartsAccumulation(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(2_000_000, 2_000_000, 1_500_000, 2_000_000, 2_000_000, 2_000_000)
	o := f.orchestrator([]domain.Group{groupA}, 3, 300*time.Second)

	stats := runCycles(o, f.clk, 6, time.Minute)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, stats[i].AlertsSent, "cycle %d", i+1)
	}
	assert.Equal(t, 1, stats[5].AlertsSent)
}

func TestRunCycle_LedgerPreventsResend(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	require.NoError(t, f.ledger.NotificationLedger.Record(context.Background(), &domain.MilestoneNotification{
		TokenID: 1, TokenAddress: "tokenA", Group: groupA, MilestoneValue: 2, MilestoneLabel: "2x", NotifiedAt: t0,
	}))
	f.provider.caps = caps(2_000_000)
	o := f.orchestrator([]domain.Group{groupA}, 1, 0)

	stats := runCycles(o, f.clk, 5, time.Minute)

	assert.Equal(t, 0, f.notifier.count())
	assert.Equal(t, 0, f.ledger.records)
	for _, s := range stats {
		assert.Equal(t, 0, s.AlertsSent)
		assert.Equal(t, 0, s.Errors)
	}
	assert.Equal(t, 0, o.tracker.Count(crossingKey(groupA, 1, 2)))
}

func TestRunCycle_FailedSendRetriesNextCycle(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(2_000_000)
	f.notifier.failures = 1
	f.notifier.err = domain.NewError(domain.KindExternalService, "telegram send", errors.New("502"))
	o := f.orchestrator([]domain.Group{groupA}, 3, 300*time.Second)

	stats := runCycles(o, f.clk, 4, time.Minute)

	assert.Equal(t, 1, stats[2].Errors)
	assert.Equal(t, 0, stats[2].AlertsSent)
	assert.Equal(t, 0, f.ledger.records, "ledger untouched on failed send")
	assert.Equal(t, 1, stats[3].AlertsSent, "count stayed at threshold")
	assert.Equal(t, 1, f.ledger.records)
}

func TestRunCycle_CooldownSuspendsEvaluation(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addMilestone(t, groupA, 3, "3x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(3_500_000)
	o := f.orchestrator([]domain.Group{groupA}, 2, 300*time.Second)

	// t=0: both pairs count 1. t=60: 2x confirmed and sent, 3x not evaluated.
	stats := runCycles(o, f.clk, 2, time.Minute)
	assert.Equal(t, 1, stats[1].AlertsSent)
	assert.Equal(t, 1, o.tracker.Count(crossingKey(groupA, 1, 3)))

	// t=120..300: cooldown started at t=60 holds until t=360.
	stats = runCycles(o, f.clk, 4, time.Minute)
	for _, s := range stats {
		assert.Equal(t, 0, s.AlertsSent)
		assert.Equal(t, 1, s.Processed)
		assert.Equal(t, 0, s.Skipped)
	}
	assert.Equal(t, 1, o.tracker.Count(crossingKey(groupA, 1, 3)), "count untouched during cooldown")
	assert.Equal(t, 0, o.tracker.Count(crossingKey(groupA, 1, 2)))

	// t=360: cooldown lifted, 3x completes its accumulation.
	require.Equal(t, t0.Add(6*time.Minute), f.clk.Now())
	s := o.RunCycle(context.Background())
	assert.Equal(t, 1, s.AlertsSent)
	require.Equal(t, 2, f.notifier.count())
	assert.Contains(t, f.notifier.sent[1].text, "3x")
}

func TestRunCycle_NullCapSkipped(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.addToken(t, groupA, 2, "tokenB", 1_000_000)
	f.provider.caps = []map[string]float64{{"tokenA": 0}}
	o := f.orchestrator([]domain.Group{groupA}, 1, 0)

	stats := o.RunCycle(context.Background())

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
}

func TestRunCycle_ProviderFailureCountsOneError(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addMilestone(t, "B", 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.addToken(t, "B", 1, "tokenA", 1_000_000)
	f.provider.err = errors.New("all batches failed")
	o := f.orchestrator([]domain.Group{groupA, "B"}, 1, 0)

	stats := o.RunCycle(context.Background())

	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 2, f.provider.calls)
}

func TestRunCycle_TokenPanicIsolated(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.addToken(t, groupA, 2, "tokenB", 1_000_000)
	require.NoError(t, f.tokens.Add(context.Background(), groupA, domain.Token{
		ID: 3, TokenAddress: "tokenC", Symbol: "BOOM", InitialMarketCapUSD: 1_000_000, FirstCalledAt: t0,
	}))
	f.provider.caps = []map[string]float64{{"tokenA": 2_000_000, "tokenB": 2_000_000, "tokenC": 2_000_000}}
	f.notifier.panicOn = "BOOM"
	o := f.orchestrator([]domain.Group{groupA}, 1, 0)

	stats := o.RunCycle(context.Background())

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.AlertsSent)
}

func TestRunCycle_LedgerWriteFailureAfterSend(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(2_000_000)
	f.ledger.recordErr = errors.New("insert failed")
	o := f.orchestrator([]domain.Group{groupA}, 1, 300*time.Second)

	first := o.RunCycle(context.Background())
	f.clk.Advance(time.Minute)
	second := o.RunCycle(context.Background())

	assert.Equal(t, 1, first.AlertsSent)
	assert.Equal(t, 1, first.Errors)
	assert.Equal(t, 0, second.AlertsSent, "cooldown started")
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 1, o.tracker.Count(crossingKey(groupA, 1, 2)), "tracker not reset")
}

func TestRunCycle_LedgerLookupFailure(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(2_000_000)
	f.ledger.lookupErr = errors.New("timeout")
	o := f.orchestrator([]domain.Group{groupA}, 1, 0)

	stats := o.RunCycle(context.Background())

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, f.notifier.count())
}

func TestRunCycle_StoresObservations(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(1_000_000, 5_000_000)
	o := f.orchestrator([]domain.Group{groupA}, 3, 0)

	stats := runCycles(o, f.clk, 2, time.Minute)

	obs, err := f.observations.GetByToken(context.Background(), "tokenA", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[0].Accepted)
	assert.Equal(t, 1.0, obs[0].Multiple)
	assert.Equal(t, stats[0].CycleID, obs[0].CycleID)
	assert.False(t, obs[1].Accepted)
	assert.Equal(t, 5.0, obs[1].Multiple)
}

func TestCurrentStats_Snapshot(t *testing.T) {
	f := newFixture()
	f.addMilestone(t, groupA, 2, "2x")
	f.addToken(t, groupA, 1, "tokenA", 1_000_000)
	f.provider.caps = caps(1_500_000)
	o := f.orchestrator([]domain.Group{groupA}, 3, 0)

	assert.False(t, o.CurrentStats().Finished())

	f.clk.Advance(time.Second)
	stats := o.RunCycle(context.Background())
	current := o.CurrentStats()
	assert.Equal(t, stats, current)
	assert.NotEmpty(t, current.CycleID)

	*current.EndTime = time.Time{}
	assert.Equal(t, stats.EndTime, o.CurrentStats().EndTime)

	next := o.RunCycle(context.Background())
	assert.NotEqual(t, stats.CycleID, next.CycleID)
}

func TestNew_Defaults(t *testing.T) {
	o := New(Options{})
	assert.Equal(t, domain.DefaultGroups, o.groups)
	assert.Equal(t, DefaultConsecutiveThreshold, o.tracker.Threshold())
}

func TestNew_AlertCooldownZeroAndNegative(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	key := milestone.TokenKey{Group: domain.GroupFSM, TokenID: 1}

	off := New(Options{AlertCooldown: 0})
	off.tracker.StartCooldown(key, at)
	assert.False(t, off.tracker.InCooldown(key, at.Add(time.Second)), "zero cooldown is disabled")

	def := New(Options{AlertCooldown: -time.Second})
	def.tracker.StartCooldown(key, at)
	assert.True(t, def.tracker.InCooldown(key, at.Add(DefaultAlertCooldown-time.Second)))
	assert.False(t, def.tracker.InCooldown(key, at.Add(DefaultAlertCooldown)))
}

// ledger must satisfy the port it wraps.
var _ storage.NotificationLedger = (*spyLedger)(nil)
