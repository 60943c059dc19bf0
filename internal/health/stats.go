package health

import (
	"time"

	"milestone-bot/internal/domain"
)

// StatsView is the JSON form of domain.CycleStats.
type StatsView struct {
	CycleID    string     `json:"cycle_id,omitempty"`
	Processed  int        `json:"processed"`
	AlertsSent int        `json:"alerts_sent"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Running    bool       `json:"running"`
}

// NewStatsView converts stats. A zero CycleStats (no cycle yet) has no start time.
func NewStatsView(s domain.CycleStats) StatsView {
	v := StatsView{
		CycleID:    s.CycleID,
		Processed:  s.Processed,
		AlertsSent: s.AlertsSent,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
		EndTime:    s.EndTime,
		DurationMs: s.Duration.Milliseconds(),
	}
	if !s.StartTime.IsZero() {
		start := s.StartTime
		v.StartTime = &start
		v.Running = !s.Finished()
	}
	return v
}
