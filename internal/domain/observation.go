package domain

import "time"

// MarketCapObservation is one provider reading for a token in a cycle.
// Corresponds to market_cap_observations table in ClickHouse.
type MarketCapObservation struct {
	CycleID      string
	Group        Group
	TokenID      int64
	TokenAddress string
	ObservedAt   time.Time
	MarketCapUSD float64
	Multiple     float64 // current / initial, 0 when initial <= 0
	Accepted     bool    // false when rejected by the rate-of-change guard
}
