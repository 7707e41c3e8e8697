// Package config loads the newswire configuration: a YAML file with
// defaults merged underneath and credentials overridable from the
// environment. Validation failures here are the only errors fatal at
// startup; everything downstream degrades per stage.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/newswire/internal/feeds"
)

const (
	defaultTimezone = "UTC"

	configPathEnv     = "NEWSWIRE_CONFIG"
	primaryTokenEnv   = "TELEGRAM_BOT_TOKEN"
	primaryChatEnv    = "TELEGRAM_CHAT_ID"
	secondaryTokenEnv = "SECONDARY_TELEGRAM_BOT_TOKEN"
	secondaryChatEnv  = "SECONDARY_TELEGRAM_CHAT_ID"
	timezoneEnv       = "NEWS_TZ"
)

// Config holds everything the pipeline needs for one deployment.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	StateFile   string `yaml:"state_file"`
	HistoryDB   string `yaml:"history_db"`
	Timezone    string `yaml:"timezone"`
	PollSeconds int    `yaml:"poll_seconds"`

	Logging    LoggingConfig        `yaml:"logging"`
	Quiet      QuietConfig          `yaml:"quiet"`
	Fetch      FetchConfig          `yaml:"fetch"`
	Classifier ClassifierConfig     `yaml:"classifier"`
	Heat       HeatConfig           `yaml:"heat"`
	Digest     DigestConfig         `yaml:"digest"`
	Dedup      DedupConfig          `yaml:"dedup"`
	History    HistoryConfig        `yaml:"history"`
	Channels   ChannelsConfig       `yaml:"channels"`
	Sources    []feeds.SourceConfig `yaml:"sources"`

	location *time.Location
}

// LoggingConfig selects log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// QuietConfig defines the suppression window in local wall-clock hours.
type QuietConfig struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// FetchConfig bounds the fetch stage.
type FetchConfig struct {
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
	Concurrency       int  `yaml:"concurrency"`
	MaxItemsPerSource int  `yaml:"max_items_per_source"`
	RatePerMinute     int  `yaml:"rate_per_minute"`
	ArticleImage      bool `yaml:"article_image"` // fetch article page for og:image
}

// TopicRule maps a topic label to the keywords that select it.
type TopicRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ClassifierConfig drives accept/skip decisions.
type ClassifierConfig struct {
	MaxAgeHours      float64     `yaml:"max_age_hours"`
	MajorOnly        bool        `yaml:"major_only"`
	MajorKeywords    []string    `yaml:"major_keywords"`
	AllowedLanguages []string    `yaml:"allowed_languages"`
	Topics           []TopicRule `yaml:"topics"`
	ExemptTopic      string      `yaml:"exempt_topic"` // topic that bypasses major-only
	Watchlist        []string    `yaml:"watchlist"`    // keywords that bypass major-only
	FallbackTopic    string      `yaml:"fallback_topic"`
}

// HeatSignal is one keyword group contributing to the heat score.
type HeatSignal struct {
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// HeatConfig parameterizes the scoring function. The shape of the formula
// lives in internal/heat; these are policy knobs only.
type HeatConfig struct {
	ImmediateMin        float64            `yaml:"immediate_min"`
	DefaultSourceWeight float64            `yaml:"default_source_weight"`
	RecencyWeight       float64            `yaml:"recency_weight"`
	HalfLifeHours       float64            `yaml:"half_life_hours"`
	NumericBonus        float64            `yaml:"numeric_bonus"`
	Signals             []HeatSignal       `yaml:"signals"`
	SourceWeights       map[string]float64 `yaml:"source_weights"`
}

// DigestConfig bounds the quiet-hours and low-heat buffers.
type DigestConfig struct {
	Capacity         int   `yaml:"capacity"`
	SummaryThreshold int   `yaml:"summary_threshold"`
	ChunkSize        int   `yaml:"chunk_size"`
	MaxHeadlines     int   `yaml:"max_headlines"`
	LowSlots         []int `yaml:"low_slots"` // local hours for low-heat digests
	BootstrapSilent  bool  `yaml:"bootstrap_silent"`
}

// DedupConfig controls seen-set retention.
type DedupConfig struct {
	TTLHours int `yaml:"ttl_hours"`
}

// HistoryConfig controls the audit store lookback window.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// ChannelConfig is one Telegram destination.
type ChannelConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// ChannelsConfig wires the delivery targets and transport bounds.
type ChannelsConfig struct {
	Primary        ChannelConfig `yaml:"primary"`
	Secondary      ChannelConfig `yaml:"secondary"`
	Alert          ChannelConfig `yaml:"alert"`
	Retries        int           `yaml:"retries"`
	BackoffMillis  int           `yaml:"backoff_ms"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	FallbackImage  string        `yaml:"fallback_image"`
}

// Load reads YAML configuration (path from NEWSWIRE_CONFIG when empty) and
// applies environment overrides. The returned config is validated.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Field: "config", Reason: fmt.Sprintf("cannot read %s: %v", path, err)}
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, &Error{Field: "config", Reason: fmt.Sprintf("cannot parse %s: %v", path, err)}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Error is a fatal configuration error.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Location resolves the configured timezone.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(primaryTokenEnv); v != "" {
		c.Channels.Primary.BotToken = v
	}
	if v := os.Getenv(primaryChatEnv); v != "" {
		c.Channels.Primary.ChatID = v
	}
	if v := os.Getenv(secondaryTokenEnv); v != "" {
		c.Channels.Secondary.BotToken = v
	}
	if v := os.Getenv(secondaryChatEnv); v != "" {
		c.Channels.Secondary.ChatID = v
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Timezone = v
	}
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return &Error{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", c.Timezone)}
	}
	c.location = loc

	if c.Quiet.StartHour < 0 || c.Quiet.StartHour > 23 {
		return &Error{Field: "quiet.start_hour", Reason: "must be in [0,23]"}
	}
	if c.Quiet.EndHour < 0 || c.Quiet.EndHour > 23 {
		return &Error{Field: "quiet.end_hour", Reason: "must be in [0,23]"}
	}
	if c.Channels.Primary.BotToken == "" || c.Channels.Primary.ChatID == "" {
		return &Error{Field: "channels.primary", Reason: "bot token and chat id are required"}
	}
	if c.Digest.Capacity <= 0 {
		return &Error{Field: "digest.capacity", Reason: "must be positive"}
	}

	enabled := 0
	seen := make(map[string]bool)
	for _, s := range c.Sources {
		if s.ID == "" || s.Endpoint == "" {
			return &Error{Field: "sources", Reason: fmt.Sprintf("source %q missing id or endpoint", s.Name)}
		}
		if seen[s.ID] {
			return &Error{Field: "sources", Reason: fmt.Sprintf("duplicate source id %q", s.ID)}
		}
		seen[s.ID] = true
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return &Error{Field: "sources", Reason: "at least one enabled source is required"}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		StateFile:   "newswire.state.json",
		HistoryDB:   "newswire.history.db",
		Timezone:    defaultTimezone,
		PollSeconds: 120,
		Logging:     LoggingConfig{Level: "info"},
		Quiet:       QuietConfig{StartHour: 23, EndHour: 9},
		Fetch: FetchConfig{
			TimeoutSeconds:    20,
			Concurrency:       5,
			MaxItemsPerSource: 3,
			RatePerMinute:     30,
			ArticleImage:      true,
		},
		Classifier: ClassifierConfig{
			MaxAgeHours:      24,
			MajorOnly:        true,
			AllowedLanguages: []string{"en", "zh"},
			FallbackTopic:    "General",
		},
		Heat: HeatConfig{
			ImmediateMin:        5,
			DefaultSourceWeight: 1.5,
			RecencyWeight:       1.8,
			HalfLifeHours:       6,
			NumericBonus:        0.8,
		},
		Digest: DigestConfig{
			Capacity:         40,
			SummaryThreshold: 10,
			ChunkSize:        15,
			MaxHeadlines:     15,
			LowSlots:         []int{9, 12, 15, 18, 21},
			BootstrapSilent:  true,
		},
		Dedup:   DedupConfig{TTLHours: 72},
		History: HistoryConfig{RetentionDays: 7},
		Channels: ChannelsConfig{
			Retries:        3,
			BackoffMillis:  500,
			TimeoutSeconds: 20,
			FallbackImage:  "https://upload.wikimedia.org/wikipedia/commons/thumb/a/ac/No_image_available.svg/512px-No_image_available.svg.png",
		},
	}
}
