package dedup

import (
	"testing"
	"time"
)

func TestStoreRecordAndIsNew(t *testing.T) {
	s := NewStore()
	now := time.Now()

	if !s.IsNew("a") {
		t.Fatal("empty store should report a as new")
	}
	s.Record("a", now)
	if s.IsNew("a") {
		t.Fatal("recorded identity still reported new")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestStoreKeepsEarliestTimestamp(t *testing.T) {
	s := NewStore()
	first := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	s.Record("a", first)
	s.Record("a", first.Add(time.Hour))
	if got := s.Snapshot()["a"]; !got.Equal(first) {
		t.Errorf("first-seen drifted to %v, want %v", got, first)
	}
}

func TestStoreIgnoresEmptyID(t *testing.T) {
	s := NewStore()
	s.Record("", time.Now())
	if s.Len() != 0 {
		t.Errorf("empty identity was recorded")
	}
}

func TestStorePrune(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	s.Record("old", now.Add(-80*time.Hour))
	s.Record("edge", now.Add(-72*time.Hour))
	s.Record("fresh", now.Add(-time.Hour))

	removed := s.Prune(now, 72*time.Hour)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if s.IsNew("old") != true {
		t.Error("old entry survived prune")
	}
	if s.IsNew("edge") || s.IsNew("fresh") {
		t.Error("in-window entry was pruned")
	}
}

func TestStoreSnapshotRestoreRoundTrip(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Record("a", now)
	s.Record("b", now.Add(-time.Hour))

	snap := s.Snapshot()
	snap["c"] = now // mutating the copy must not touch the store
	if !s.IsNew("c") {
		t.Fatal("snapshot is not a copy")
	}

	restored := NewStore()
	restored.Restore(s.Snapshot())
	if restored.Len() != 2 || restored.IsNew("a") || restored.IsNew("b") {
		t.Errorf("restore lost entries: len=%d", restored.Len())
	}
}
