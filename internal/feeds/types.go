package feeds

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Priority identifies how much trust a source carries in ranking and
// tie-breaking. Primary sources are wire services and first-party feeds;
// fallback sources are search-engine mirrors of the same outlets.
type Priority string

const (
	PriorityPrimary  Priority = "primary"
	PriorityFallback Priority = "fallback"
)

// Article is the canonical record every raw feed entry is normalized into.
// Immutable once normalized, except Heat which is recomputed whenever the
// article is re-ranked (recency decay moves with the clock).
type Article struct {
	ID        string // stable identity hash, see Identity
	SourceID  string
	Title     string
	Link      string
	Published time.Time
	Image     string // best image URL from the feed entry, may be empty
	Language  string // "en", "zh", "other"
	Topic     string // assigned by the classifier
	Heat      float64
	FirstSeen time.Time
}

// Identity derives the stable dedup key for an entry. GUID wins when the
// feed provides one, then the normalized link, then source+title.
func Identity(sourceID, guid, link, title string) string {
	switch {
	case guid != "":
		return hashString(sourceID + "|" + guid)
	case link != "":
		return hashString(sourceID + "|" + link)
	default:
		return hashString(sourceID + "|" + title)
	}
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8]) // 16 character hex string
}

// SourceConfig describes a single feed source. Read-only to the pipeline
// once a cycle has started.
type SourceConfig struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Endpoint   string   `yaml:"endpoint"`
	Fallbacks  []string `yaml:"fallbacks"`
	Enabled    bool     `yaml:"enabled"`
	Priority   Priority `yaml:"priority"`
	Weight     float64  `yaml:"weight"`
	Language   string   `yaml:"language"` // preferred entry language
	Category   string   `yaml:"category"`
	LogoDomain string   `yaml:"logo_domain"`
}

// Candidates returns every feed URL to try for this source, primary first,
// without duplicates.
func (s SourceConfig) Candidates() []string {
	urls := make([]string, 0, 1+len(s.Fallbacks))
	seen := make(map[string]bool)
	for _, u := range append([]string{s.Endpoint}, s.Fallbacks...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// Registry holds the static source set for a deployment.
type Registry struct {
	sources []SourceConfig
}

// NewRegistry copies the given sources so later config mutation cannot
// leak into a running cycle.
func NewRegistry(sources []SourceConfig) *Registry {
	cp := make([]SourceConfig, len(sources))
	copy(cp, sources)
	return &Registry{sources: cp}
}

// Enabled returns the enabled sources in registration order.
func (r *Registry) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.sources))
	for _, s := range r.sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the config for a source id.
func (r *Registry) Lookup(id string) (SourceConfig, bool) {
	for _, s := range r.sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Len returns the total number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }
