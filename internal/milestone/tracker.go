package milestone

import (
	"sync"
	"time"

	"milestone-bot/internal/domain"
)

// CrossingKey identifies one (token, milestone) pair.
type CrossingKey struct {
	Group   domain.Group
	TokenID int64
	Value   float64
}

// TokenKey identifies a token for cooldown purposes.
type TokenKey struct {
	Group   domain.Group
	TokenID int64
}

// Tracker counts consecutive crossing cycles per pair and holds the
// per-token alert cooldown.
//
// Per pair: Idle(0) -> Accumulating(k) -> Confirmed (count >= threshold).
// The caller resets a pair once the alert is delivered or found in the
// ledger. A failed send leaves the count in place so the next cycle retries.
type Tracker struct {
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	counts    map[CrossingKey]int
	lastAlert map[TokenKey]time.Time
}

// NewTracker creates a tracker. Threshold below 1 is treated as 1.
func NewTracker(threshold int, cooldown time.Duration) *Tracker {
	if threshold < 1 {
		threshold = 1
	}
	return &Tracker{
		threshold: threshold,
		cooldown:  cooldown,
		counts:    make(map[CrossingKey]int),
		lastAlert: make(map[TokenKey]time.Time),
	}
}

// Observe records this cycle's crossing result for a pair.
// Returns the new count and whether the crossing is confirmed.
func (t *Tracker) Observe(key CrossingKey, crossed bool) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !crossed {
		delete(t.counts, key)
		return 0, false
	}
	n := t.counts[key] + 1
	t.counts[key] = n
	return n, n >= t.threshold
}

// Reset returns a pair to Idle.
func (t *Tracker) Reset(key CrossingKey) {
	t.mu.Lock()
	delete(t.counts, key)
	t.mu.Unlock()
}

// Count returns the current consecutive count for a pair.
func (t *Tracker) Count(key CrossingKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

// InCooldown reports whether the token alerted less than cooldown ago.
func (t *Tracker) InCooldown(token TokenKey, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.lastAlert[token]
	if !ok {
		return false
	}
	return now.Sub(at) < t.cooldown
}

// StartCooldown marks a successful alert for the token at the given time.
func (t *Tracker) StartCooldown(token TokenKey, at time.Time) {
	t.mu.Lock()
	t.lastAlert[token] = at
	t.mu.Unlock()
}

// Threshold returns the confirmation threshold in effect.
func (t *Tracker) Threshold() int {
	return t.threshold
}
