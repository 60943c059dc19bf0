// Package milestone decides when a token's market cap has crossed a
// configured multiple of its initial value, and when that crossing is
// trustworthy enough to alert on.
package milestone

import (
	"sort"

	"milestone-bot/internal/domain"
)

// Policy evaluates market caps against one group's milestone set.
type Policy struct {
	milestones []domain.MilestoneConfig
}

// NewPolicy copies configs and sorts them ascending by value.
func NewPolicy(configs []domain.MilestoneConfig) *Policy {
	ms := make([]domain.MilestoneConfig, len(configs))
	copy(ms, configs)
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Value < ms[j].Value
	})
	return &Policy{milestones: ms}
}

// IsCrossed reports whether currentCap >= initialCap*m.Value.
// Non-positive caps never cross.
func (p *Policy) IsCrossed(initialCap, currentCap float64, m domain.MilestoneConfig) bool {
	if initialCap <= 0 || currentCap <= 0 {
		return false
	}
	return currentCap >= initialCap*m.Value
}

// AllCrossed returns every crossed milestone, ascending by value.
func (p *Policy) AllCrossed(initialCap, currentCap float64) []domain.MilestoneConfig {
	var out []domain.MilestoneConfig
	for _, m := range p.milestones {
		if p.IsCrossed(initialCap, currentCap, m) {
			out = append(out, m)
		}
	}
	return out
}

// Multiple returns currentCap/initialCap, or 0 when initialCap <= 0.
func (p *Policy) Multiple(initialCap, currentCap float64) float64 {
	if initialCap <= 0 {
		return 0
	}
	return currentCap / initialCap
}

// Milestones returns the sorted milestone set.
func (p *Policy) Milestones() []domain.MilestoneConfig {
	out := make([]domain.MilestoneConfig, len(p.milestones))
	copy(out, p.milestones)
	return out
}
