package domain

import "time"

// CycleStats holds counters for one polling cycle.
// A snapshot with EndTime set is frozen.
type CycleStats struct {
	CycleID    string
	Processed  int // tokens seen
	AlertsSent int // notifications delivered
	Skipped    int // null caps and guard rejections
	Errors     int // failed groups, tokens and alert attempts
	StartTime  time.Time
	EndTime    *time.Time // nil while the cycle is running
	Duration   time.Duration
}

// Finished reports whether the cycle has completed.
func (s CycleStats) Finished() bool {
	return s.EndTime != nil
}

// CycleRun is a finished cycle persisted for inspection.
// Corresponds to cycle_runs table in ClickHouse.
type CycleRun struct {
	CycleID    string
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
	Processed  int
	AlertsSent int
	Skipped    int
	Errors     int
}

// NewCycleRun converts finished stats into a CycleRun.
// Returns false for a cycle still in progress.
func NewCycleRun(s CycleStats) (CycleRun, bool) {
	if s.EndTime == nil {
		return CycleRun{}, false
	}
	return CycleRun{
		CycleID:    s.CycleID,
		StartedAt:  s.StartTime,
		EndedAt:    *s.EndTime,
		DurationMs: s.Duration.Milliseconds(),
		Processed:  s.Processed,
		AlertsSent: s.AlertsSent,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
	}, true
}
