// Package classify decides, for each new article, whether it is accepted
// for delivery or skipped, and assigns the topic label used for digest
// grouping. Decisions are a total function of (article, filter mode, now)
// and never depend on delivery outcome.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/abelbrown/newswire/internal/config"
	"github.com/abelbrown/newswire/internal/feeds"
)

// SkipReason enumerates why an article was not accepted.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipSeen
	SkipStale
	SkipMajorOnly
	SkipLanguage
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipSeen:
		return "seen"
	case SkipStale:
		return "stale"
	case SkipMajorOnly:
		return "major_only"
	case SkipLanguage:
		return "language"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Decision is the classifier verdict for one article.
type Decision struct {
	Accept bool
	Reason SkipReason
	Topic  string
	// Exempt marks articles that bypass major-only filtering (exempt topic
	// or watchlist hit); the pipeline also delivers these immediately.
	Exempt bool
}

// Classifier holds the compiled filter state. Build once at startup.
type Classifier struct {
	maxAge        time.Duration
	majorOnly     bool
	majorPatterns []*regexp.Regexp
	watchlist     []string
	exemptTopic   string
	fallbackTopic string
	allowedLangs  map[string]bool
	topics        []topicRule
}

type topicRule struct {
	name     string
	patterns []*regexp.Regexp
	literals []string // non-ASCII keywords matched by substring
}

// New compiles a classifier from configuration.
func New(cfg config.ClassifierConfig) *Classifier {
	c := &Classifier{
		maxAge:        time.Duration(cfg.MaxAgeHours * float64(time.Hour)),
		majorOnly:     cfg.MajorOnly,
		majorPatterns: compileKeywords(cfg.MajorKeywords),
		exemptTopic:   cfg.ExemptTopic,
		fallbackTopic: cfg.FallbackTopic,
		allowedLangs:  make(map[string]bool),
	}
	if c.fallbackTopic == "" {
		c.fallbackTopic = "General"
	}
	for _, l := range cfg.AllowedLanguages {
		c.allowedLangs[l] = true
	}
	for _, kw := range cfg.Watchlist {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			c.watchlist = append(c.watchlist, kw)
		}
	}
	for _, rule := range cfg.Topics {
		tr := topicRule{name: rule.Name}
		for _, kw := range rule.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if isASCII(kw) {
				tr.patterns = append(tr.patterns, wordPattern(kw))
			} else {
				tr.literals = append(tr.literals, kw)
			}
		}
		c.topics = append(c.topics, tr)
	}
	return c
}

// Classify decides accept/skip for a non-duplicate article at the given
// instant. Dedup is the caller's concern; SkipSeen is never produced here.
func (c *Classifier) Classify(art feeds.Article, now time.Time) Decision {
	topic := c.Topic(art.Title)

	if !c.allowedLangs[art.Language] {
		return Decision{Reason: SkipLanguage, Topic: topic}
	}

	if art.Published.IsZero() || now.Sub(art.Published) > c.maxAge {
		return Decision{Reason: SkipStale, Topic: topic}
	}

	exempt := (c.exemptTopic != "" && topic == c.exemptTopic) || c.watchlistHit(art.Title)

	if c.majorOnly && !exempt && !c.isMajor(art.Title) {
		return Decision{Reason: SkipMajorOnly, Topic: topic}
	}

	return Decision{Accept: true, Topic: topic, Exempt: exempt}
}

// Topic returns the first topic rule the title matches, in rule order.
func (c *Classifier) Topic(title string) string {
	for _, rule := range c.topics {
		for _, p := range rule.patterns {
			if p.MatchString(title) {
				return rule.name
			}
		}
		for _, lit := range rule.literals {
			if strings.Contains(title, lit) {
				return rule.name
			}
		}
	}
	return c.fallbackTopic
}

// isMajor reports whether the title hits a major keyword. Opinion pieces
// never count as major regardless of keyword hits.
func (c *Classifier) isMajor(title string) bool {
	if strings.Contains(strings.ToLower(title), "opinion") {
		return false
	}
	for _, p := range c.majorPatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return false
}

func (c *Classifier) watchlistHit(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range c.watchlist {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// compileKeywords builds one pattern per keyword. ASCII keywords match as
// whole words or phrases (fed must not match federal); CJK keywords match
// by substring because word boundaries are unreliable without spaces.
func compileKeywords(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if isASCII(kw) {
			patterns = append(patterns, wordPattern(kw))
		} else {
			patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(kw)))
		}
	}
	return patterns
}

// wordPattern matches the keyword as full words, allowing hyphens between
// the words of multi-word phrases ("white house" matches "White-House").
func wordPattern(kw string) *regexp.Regexp {
	parts := strings.Fields(kw)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	joined := strings.Join(parts, `[\s\-]+`)
	return regexp.MustCompile(`(?i)(^|[^A-Za-z0-9_])(` + joined + `)($|[^A-Za-z0-9_])`)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
