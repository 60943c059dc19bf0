package domain

import (
	"testing"
	"time"
)

func TestGroupRegistry_LookupAndOrder(t *testing.T) {
	reg := NewGroupRegistry(
		GroupSettings{Group: GroupFSM, TokenTable: "tokens_fsm", ChatID: "-100"},
		GroupSettings{Group: GroupIssam, TokenTable: "tokens_issam", ChatID: "-200", ThreadID: 7},
		GroupSettings{Group: GroupFSM, TokenTable: "tokens_fsm_v2", ChatID: "-100"},
	)

	groups := reg.Groups()
	if len(groups) != 2 || groups[0] != GroupFSM || groups[1] != GroupIssam {
		t.Fatalf("unexpected group order: %v", groups)
	}

	fsm, ok := reg.Lookup(GroupFSM)
	if !ok {
		t.Fatal("expected fsm settings")
	}
	if fsm.TokenTable != "tokens_fsm_v2" {
		t.Errorf("expected later duplicate to win, got %s", fsm.TokenTable)
	}

	issam, _ := reg.Lookup(GroupIssam)
	if issam.ThreadID != 7 {
		t.Errorf("ThreadID = %d, want 7", issam.ThreadID)
	}

	if _, ok := reg.Lookup("unknown"); ok {
		t.Error("unexpected settings for unknown group")
	}
}

func TestNewCycleRun(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	running := CycleStats{CycleID: "c1", StartTime: start}
	if _, ok := NewCycleRun(running); ok {
		t.Fatal("expected running cycle to be rejected")
	}

	end := start.Add(1500 * time.Millisecond)
	done := CycleStats{CycleID: "c1", Processed: 4, AlertsSent: 1, Skipped: 2, Errors: 1,
		StartTime: start, EndTime: &end, Duration: end.Sub(start)}

	run, ok := NewCycleRun(done)
	if !ok {
		t.Fatal("expected finished cycle to convert")
	}
	if run.DurationMs != 1500 || run.Processed != 4 || run.AlertsSent != 1 {
		t.Errorf("unexpected run: %+v", run)
	}
}
