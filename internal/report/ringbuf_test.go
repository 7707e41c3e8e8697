package report

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRingBufferPushAndLast(t *testing.T) {
	r := NewRingBuffer(4)
	if r.Len() != 0 || r.Cap() != 4 {
		t.Fatalf("fresh buffer: len=%d cap=%d", r.Len(), r.Cap())
	}

	for i := 0; i < 3; i++ {
		r.Push(Event{At: time.Now(), Line: fmt.Sprintf("e%d", i)})
	}
	got := r.Last(10)
	if len(got) != 3 {
		t.Fatalf("Last(10) = %d events", len(got))
	}
	if got[0].Line != "e0" || got[2].Line != "e2" {
		t.Errorf("order wrong: %v", got)
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	r := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.Push(Event{Line: fmt.Sprintf("e%d", i)})
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	got := r.Last(3)
	want := []string{"e2", "e3", "e4"}
	for i, e := range got {
		if e.Line != want[i] {
			t.Errorf("event %d = %q, want %q", i, e.Line, want[i])
		}
	}
}

func TestRingBufferLastSubset(t *testing.T) {
	r := NewRingBuffer(8)
	for i := 0; i < 6; i++ {
		r.Push(Event{Line: fmt.Sprintf("e%d", i)})
	}
	got := r.Last(2)
	if len(got) != 2 || got[0].Line != "e4" || got[1].Line != "e5" {
		t.Errorf("Last(2) = %v", got)
	}
	if r.Last(0) != nil {
		t.Error("Last(0) should be nil")
	}
}

func TestReporterPhaseTransitions(t *testing.T) {
	rep := NewReporter(nil)
	if rep.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %s", rep.Phase())
	}

	rep.SetPhase(PhaseRunning)
	rep.SetPhase(PhaseFiltering)
	if rep.Phase() != PhaseFiltering {
		t.Fatalf("phase = %s", rep.Phase())
	}

	st := rep.Snapshot(10)
	if st.Phase != "filtering" || !st.Running {
		t.Errorf("status = %+v", st)
	}
	if len(st.Events) != 2 {
		t.Errorf("expected two transition events, got %d", len(st.Events))
	}
}

func TestReporterCycleDone(t *testing.T) {
	rep := NewReporter(nil)
	done := time.Now()
	rep.CycleDone(CycleSummary{New: 4, PushedOK: 3, SourcesOK: 5, FinishedAt: done})

	if rep.Phase() != PhaseCycleDone {
		t.Fatalf("phase = %s", rep.Phase())
	}
	st := rep.Snapshot(5)
	if st.LastCycle.New != 4 || !st.LastCycleAt.Equal(done) {
		t.Errorf("status = %+v", st)
	}
}

func TestReporterPushAndErrorInstants(t *testing.T) {
	rep := NewReporter(nil)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rep.clock = func() time.Time { return now }

	st := rep.Snapshot(0)
	if !st.LastPushAt.IsZero() || !st.LastErrorAt.IsZero() {
		t.Fatalf("fresh status carries instants: %+v", st)
	}

	rep.RecordPush(now)
	rep.RecordPush(now.Add(-time.Hour)) // out-of-order report keeps the latest
	st = rep.Snapshot(0)
	if !st.LastPushAt.Equal(now) {
		t.Errorf("LastPushAt = %v, want %v", st.LastPushAt, now)
	}

	now = now.Add(time.Minute)
	errAt := now
	rep.RecordError(errors.New("telegram 502"))
	st = rep.Snapshot(0)
	if st.LastError != "telegram 502" || !st.LastErrorAt.Equal(errAt) {
		t.Errorf("status = %+v", st)
	}
	if !st.LastPushAt.Equal(errAt.Add(-time.Minute)) {
		t.Errorf("LastPushAt moved on error: %v", st.LastPushAt)
	}

	now = now.Add(time.Minute)
	cycleErrAt := now
	rep.CycleDone(CycleSummary{Err: "all sources failed"})
	if st := rep.Snapshot(0); !st.LastErrorAt.Equal(cycleErrAt) {
		t.Errorf("LastErrorAt = %v, want %v", st.LastErrorAt, cycleErrAt)
	}
}

func TestReporterCycleError(t *testing.T) {
	rep := NewReporter(nil)
	rep.CycleDone(CycleSummary{Err: "all sources failed"})
	if rep.Phase() != PhaseFetchError {
		t.Fatalf("phase = %s", rep.Phase())
	}
	if st := rep.Snapshot(5); st.LastError != "all sources failed" {
		t.Errorf("LastError = %q", st.LastError)
	}
}
