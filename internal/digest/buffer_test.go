package digest

import (
	"fmt"
	"testing"
	"time"

	"github.com/abelbrown/newswire/internal/feeds"
)

func entry(id, topic string) Entry {
	return Entry{
		Article:    feeds.Article{ID: id, Title: "title " + id},
		Topic:      topic,
		EnqueuedAt: time.Now(),
	}
}

func TestBufferAddDeduplicates(t *testing.T) {
	b := NewBuffer(10)
	if !b.Add(entry("a", "x")) {
		t.Fatal("first add rejected")
	}
	if b.Add(entry("a", "x")) {
		t.Fatal("duplicate identity accepted")
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
}

func TestBufferEvictsOldestAtCapacity(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Add(entry(fmt.Sprintf("a%d", i), "x"))
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	if b.Evicted() != 2 {
		t.Fatalf("Evicted = %d, want 2", b.Evicted())
	}

	got := b.DrainTopic(AllTopics)
	want := []string{"a2", "a3", "a4"}
	for i, e := range got {
		if e.Article.ID != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Article.ID, want[i])
		}
	}
}

func TestBufferDrainTopic(t *testing.T) {
	b := NewBuffer(10)
	b.Add(entry("a", "war"))
	b.Add(entry("b", "tech"))
	b.Add(entry("c", "war"))

	war := b.DrainTopic("war")
	if len(war) != 2 || war[0].Article.ID != "a" || war[1].Article.ID != "c" {
		t.Fatalf("drained %d entries in wrong order", len(war))
	}
	if b.Len() != 1 {
		t.Fatalf("Len after drain = %d, want 1", b.Len())
	}

	rest := b.DrainTopic(AllTopics)
	if len(rest) != 1 || rest[0].Article.ID != "b" {
		t.Fatal("AllTopics drain missed remaining entry")
	}
	if b.Len() != 0 {
		t.Fatal("buffer not empty after full drain")
	}
}

func TestBufferRequeuePutsEntriesFirst(t *testing.T) {
	b := NewBuffer(10)
	b.Add(entry("later", "x"))
	b.Requeue([]Entry{entry("first", "x"), entry("second", "x")})

	got := b.DrainTopic(AllTopics)
	want := []string{"first", "second", "later"}
	if len(got) != 3 {
		t.Fatalf("Len = %d, want 3", len(got))
	}
	for i, e := range got {
		if e.Article.ID != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Article.ID, want[i])
		}
	}
}

func TestBufferRestoreEnforcesCapacity(t *testing.T) {
	b := NewBuffer(2)
	b.Restore([]Entry{entry("a", "x"), entry("b", "x"), entry("c", "x")})
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	got := b.DrainTopic(AllTopics)
	if got[0].Article.ID != "b" || got[1].Article.ID != "c" {
		t.Error("restore kept the wrong (oldest) entries")
	}
}
