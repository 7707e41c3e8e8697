package history

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndReadSkips(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	recs := []SkipRecord{
		{ArticleID: "a1", SourceID: "reuters", Reason: "seen", At: now.Add(-2 * time.Minute)},
		{ArticleID: "a2", SourceID: "bbc", Reason: "stale", At: now.Add(-time.Minute)},
		{ArticleID: "a3", SourceID: "bbc", Reason: "major_only", At: now},
	}
	for _, r := range recs {
		if err := s.RecordSkip(r); err != nil {
			t.Fatalf("RecordSkip: %v", err)
		}
	}

	got, err := s.RecentSkips(2)
	if err != nil {
		t.Fatalf("RecentSkips: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ArticleID != "a3" || got[1].ArticleID != "a2" {
		t.Errorf("newest-first ordering broken: %v, %v", got[0].ArticleID, got[1].ArticleID)
	}
	if got[0].Reason != "major_only" || got[0].SourceID != "bbc" {
		t.Errorf("record fields lost: %+v", got[0])
	}
}

func TestRecordAndReadDeliveries(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.RecordDelivery(DeliveryRecord{Message: "digest", Channel: "primary", OK: true, At: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	if err := s.RecordDelivery(DeliveryRecord{Message: "item", Channel: "secondary", OK: false, Error: "timeout", At: now}); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	got, err := s.RecentDeliveries(10)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].OK || got[0].Error != "timeout" || got[0].Channel != "secondary" {
		t.Errorf("failed delivery record wrong: %+v", got[0])
	}
	if !got[1].OK || got[1].Error != "" {
		t.Errorf("ok delivery record wrong: %+v", got[1])
	}
}

func TestPruneRemovesOldRows(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	s.RecordSkip(SkipRecord{ArticleID: "old", SourceID: "x", Reason: "seen", At: now.Add(-10 * 24 * time.Hour)})
	s.RecordSkip(SkipRecord{ArticleID: "new", SourceID: "x", Reason: "seen", At: now})
	s.RecordDelivery(DeliveryRecord{Message: "old", Channel: "primary", OK: true, At: now.Add(-10 * 24 * time.Hour)})

	removed, err := s.Prune(now, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	skips, _ := s.RecentSkips(10)
	if len(skips) != 1 || skips[0].ArticleID != "new" {
		t.Errorf("surviving skips = %+v", skips)
	}
}
