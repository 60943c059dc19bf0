package domain

import "time"

// Token is a called token tracked for milestone crossings.
// Owned by the token source, read-only to the polling core.
type Token struct {
	ID                  int64     // unique per group table
	TokenAddress        string    // chain address, key into per-cycle market caps
	Symbol              string    // display symbol
	InitialMarketCapUSD float64   // market cap at call time, immutable
	FirstCalledAt       time.Time // UTC call time
}
