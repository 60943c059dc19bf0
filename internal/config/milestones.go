package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"milestone-bot/internal/domain"
)

// MilestoneSeed is one parsed milestone definition.
type MilestoneSeed struct {
	Value float64
	Label string
}

// ParseMilestones parses "value[:label]" pairs separated by commas.
// A missing label defaults to "<value>x". Values must be positive and unique.
func ParseMilestones(list string) ([]MilestoneSeed, error) {
	var out []MilestoneSeed
	seen := make(map[float64]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		raw, label, _ := strings.Cut(part, ":")
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("MILESTONES: invalid value %q", raw)
		}
		if seen[v] {
			return nil, fmt.Errorf("MILESTONES: duplicate value %g", v)
		}
		seen[v] = true
		label = strings.TrimSpace(label)
		if label == "" {
			label = decimal.NewFromFloat(v).String() + "x"
		}
		out = append(out, MilestoneSeed{Value: v, Label: label})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("MILESTONES: no milestones in %q", list)
	}
	return out, nil
}

// MilestoneConfigs expands seeds into configs for a group.
func MilestoneConfigs(group domain.Group, seeds []MilestoneSeed) []domain.MilestoneConfig {
	createdBy := "seed"
	out := make([]domain.MilestoneConfig, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, domain.MilestoneConfig{
			Group:     group,
			Value:     s.Value,
			Label:     s.Label,
			IsActive:  true,
			CreatedBy: &createdBy,
		})
	}
	return out
}
