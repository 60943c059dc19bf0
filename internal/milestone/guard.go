package milestone

import (
	"math"
	"sync"
	"time"

	"milestone-bot/internal/clock"
)

// KnownCap is the last accepted market cap for a token address.
type KnownCap struct {
	Value      float64
	ObservedAt time.Time
}

// Guard rejects readings that jump implausibly far from the last
// accepted reading of the same token address.
type Guard struct {
	maxRatio float64
	clk      clock.Clock

	mu   sync.Mutex
	last map[string]KnownCap
}

// NewGuard creates a guard with the given change bound (must be > 1).
func NewGuard(maxRatio float64, clk clock.Clock) *Guard {
	if clk == nil {
		clk = clock.System{}
	}
	return &Guard{
		maxRatio: maxRatio,
		clk:      clk,
		last:     make(map[string]KnownCap),
	}
}

// Validate returns the cap and true when the reading is accepted.
// Rejected readings leave the stored value untouched.
func (g *Guard) Validate(tokenAddress string, newCap float64) (float64, bool) {
	if math.IsNaN(newCap) || math.IsInf(newCap, 0) || newCap <= 0 {
		return 0, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, seen := g.last[tokenAddress]
	if seen && prev.Value > 0 && !g.withinBound(prev.Value, newCap) {
		return 0, false
	}

	g.last[tokenAddress] = KnownCap{Value: newCap, ObservedAt: g.clk.Now()}
	return newCap, true
}

// boundTolerance absorbs rounding so readings of exactly last*r and
// last/r stay inside the bound.
const boundTolerance = 1e-12

// withinBound reports last/r <= newCap <= last*r without dividing.
func (g *Guard) withinBound(last, newCap float64) bool {
	limit := g.maxRatio * (1 + boundTolerance)
	return newCap <= last*limit && newCap*limit >= last
}

// LastKnown returns the last accepted cap for an address.
func (g *Guard) LastKnown(tokenAddress string) (KnownCap, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k, ok := g.last[tokenAddress]
	return k, ok
}
