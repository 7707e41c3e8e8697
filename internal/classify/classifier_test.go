package classify

import (
	"testing"
	"time"

	"github.com/abelbrown/newswire/internal/config"
	"github.com/abelbrown/newswire/internal/feeds"
)

func testClassifier() *Classifier {
	cfg := config.ClassifierConfig{
		MaxAgeHours:      24,
		MajorOnly:        true,
		AllowedLanguages: []string{"en", "zh"},
		FallbackTopic:    "General",
	}
	ApplyDefaults(&cfg)
	return New(cfg)
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-2 * time.Hour)

	tests := []struct {
		name   string
		art    feeds.Article
		accept bool
		reason SkipReason
		exempt bool
	}{
		{
			name:   "major keyword accepted",
			art:    feeds.Article{Title: "Fed raises interest rates again", Language: "en", Published: fresh},
			accept: true,
		},
		{
			name:   "minor story skipped",
			art:    feeds.Article{Title: "Local bakery wins regional award", Language: "en", Published: fresh},
			reason: SkipMajorOnly,
		},
		{
			name:   "word boundary holds",
			art:    feeds.Article{Title: "Federal holiday schedule announced", Language: "en", Published: fresh},
			reason: SkipMajorOnly,
		},
		{
			name:   "opinion never major",
			art:    feeds.Article{Title: "Opinion: this election cycle is different", Language: "en", Published: fresh},
			reason: SkipMajorOnly,
		},
		{
			name:   "stale skipped",
			art:    feeds.Article{Title: "Breaking: missile strike reported", Language: "en", Published: now.Add(-30 * time.Hour)},
			reason: SkipStale,
		},
		{
			name:   "undated treated as stale",
			art:    feeds.Article{Title: "Breaking: missile strike reported", Language: "en"},
			reason: SkipStale,
		},
		{
			name:   "disallowed language skipped",
			art:    feeds.Article{Title: "0101 2345", Language: "other", Published: fresh},
			reason: SkipLanguage,
		},
		{
			name:   "exempt topic bypasses major-only",
			art:    feeds.Article{Title: "Airstrike hits convoy near the border", Language: "en", Published: fresh},
			accept: true,
			exempt: true,
		},
		{
			name:   "watchlist bypasses major-only",
			art:    feeds.Article{Title: "Iran summons European envoys", Language: "en", Published: fresh},
			accept: true,
			exempt: true,
		},
		{
			name:   "chinese major keyword accepted",
			art:    feeds.Article{Title: "乌克兰局势最新进展", Language: "zh", Published: fresh},
			accept: true,
		},
	}

	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := c.Classify(tt.art, now)
			if dec.Accept != tt.accept {
				t.Fatalf("Accept = %v, want %v (reason %s)", dec.Accept, tt.accept, dec.Reason)
			}
			if !tt.accept && dec.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", dec.Reason, tt.reason)
			}
			if dec.Exempt != tt.exempt {
				t.Errorf("Exempt = %v, want %v", dec.Exempt, tt.exempt)
			}
		})
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Ceasefire talks resume in Cairo", "War & Conflict"},
		{"Trump addresses the Senate", "US Politics"},
		{"Taiwan reports incursion near strait", "China & Asia-Pacific"},
		{"Inflation cools for a third month", "Economy & Markets"},
		{"Earthquake shakes coastal city", "Disasters & Accidents"},
		{"New semiconductor plant breaks ground", "Tech & Industry"},
		{"俄乌谈判重启", "War & Conflict"},
		{"Quiet afternoon in the newsroom", "General"},
	}

	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := c.Topic(tt.title); got != tt.want {
				t.Errorf("Topic(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestClassifyDedupIsCallerConcern(t *testing.T) {
	// SkipSeen must never be produced by the classifier itself.
	c := testClassifier()
	now := time.Now()
	art := feeds.Article{Title: "Breaking: attack reported", Language: "en", Published: now.Add(-time.Hour)}
	for i := 0; i < 3; i++ {
		dec := c.Classify(art, now)
		if !dec.Accept {
			t.Fatalf("pass %d: rejected with %s", i, dec.Reason)
		}
	}
}
