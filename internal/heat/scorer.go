// Package heat computes the numeric ranking score for articles. The
// formula combines a fixed per-source weight, keyword signal weights, and
// an exponential recency decay, so the same article scores lower every
// time it is re-evaluated later.
package heat

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/abelbrown/newswire/internal/config"
	"github.com/abelbrown/newswire/internal/feeds"
)

// Scorer ranks articles. Implementations must be deterministic in
// (article, now) and non-negative, with score strictly decreasing as the
// article ages, all other inputs fixed.
type Scorer interface {
	Score(art feeds.Article, now time.Time) float64
}

// signal is one compiled keyword group with its weight.
type signal struct {
	keywords []string
	weight   float64
}

// WeightedScorer is the default Scorer.
type WeightedScorer struct {
	sourceWeights map[string]float64
	defaultWeight float64
	signals       []signal
	numericBonus  float64
	recencyWeight float64
	halfLife      time.Duration
}

var numberPattern = regexp.MustCompile(`\b\d{3,}\b`)

// New builds a WeightedScorer from configuration. Zero-valued knobs fall
// back to workable defaults so a partial config still ranks sanely.
func New(cfg config.HeatConfig) *WeightedScorer {
	s := &WeightedScorer{
		sourceWeights: cfg.SourceWeights,
		defaultWeight: cfg.DefaultSourceWeight,
		numericBonus:  cfg.NumericBonus,
		recencyWeight: cfg.RecencyWeight,
		halfLife:      time.Duration(cfg.HalfLifeHours * float64(time.Hour)),
	}
	if s.defaultWeight <= 0 {
		s.defaultWeight = 1.5
	}
	if s.recencyWeight <= 0 {
		s.recencyWeight = 1.8
	}
	if s.halfLife <= 0 {
		s.halfLife = 6 * time.Hour
	}
	sigs := cfg.Signals
	if len(sigs) == 0 {
		sigs = DefaultSignals
	}
	for _, sig := range sigs {
		cleaned := make([]string, 0, len(sig.Keywords))
		for _, kw := range sig.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				cleaned = append(cleaned, kw)
			}
		}
		if len(cleaned) > 0 && sig.Weight > 0 {
			s.signals = append(s.signals, signal{keywords: cleaned, weight: sig.Weight})
		}
	}
	return s
}

// DefaultSignals mirror the stock heat keyword groups.
var DefaultSignals = []config.HeatSignal{
	{Keywords: []string{"breaking", "urgent", "alert"}, Weight: 3.0},
	{Keywords: []string{"war", "attack", "missile", "ceasefire", "sanction", "explosion"}, Weight: 2.6},
	{Keywords: []string{"election", "white house", "supreme court", "congress", "trump", "biden"}, Weight: 2.2},
	{Keywords: []string{"fed", "inflation", "interest rate", "recession", "tariff", "bank"}, Weight: 2.1},
	{Keywords: []string{"earthquake", "flood", "hurricane", "wildfire"}, Weight: 2.3},
	{Keywords: []string{"ai", "chip", "semiconductor"}, Weight: 1.6},
}

// DefaultSourceWeights rank the stock outlets by editorial weight.
var DefaultSourceWeights = map[string]float64{
	"reuters":   2.5,
	"ap":        2.4,
	"wapo":      2.3,
	"wsj":       2.3,
	"xinhua":    2.3,
	"bloomberg": 2.2,
	"bbc":       2.2,
	"economist": 2.1,
	"aljazeera": 2.1,
	"cnn":       2.1,
	"politico":  2.0,
	"scmp":      2.0,
	"nhk":       2.0,
	"rt":        1.9,
	"atlantic":  1.8,
	"nyp":       1.6,
}

// Score computes the heat of an article at the given instant.
func (s *WeightedScorer) Score(art feeds.Article, now time.Time) float64 {
	title := strings.ToLower(strings.TrimSpace(art.Title))

	score := s.defaultWeight
	if w, ok := s.sourceWeights[art.SourceID]; ok && w > 0 {
		score = w
	}

	for _, sig := range s.signals {
		hits := 0
		for _, kw := range sig.keywords {
			if strings.Contains(title, kw) {
				hits++
			}
		}
		if hits > 0 {
			score += sig.weight + float64(hits-1)*0.4
		}
	}

	// Concrete casualty/magnitude figures read hotter than vague headlines.
	if s.numericBonus > 0 && numberPattern.MatchString(title) {
		score += s.numericBonus
	}

	if !art.Published.IsZero() {
		age := now.Sub(art.Published)
		if age < 0 {
			age = 0 // future-dated items treated as brand new
		}
		halfLives := float64(age) / float64(s.halfLife)
		score += s.recencyWeight * math.Pow(0.5, halfLives)
	}

	return score
}
