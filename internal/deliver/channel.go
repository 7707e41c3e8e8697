// Package deliver sends rendered messages through the configured
// channels: primary always first, secondary on primary failure, and the
// alert channel for major events and failure notices. Each channel's
// health is tracked independently.
package deliver

import (
	"fmt"
	"sync"
	"time"
)

// Channel identifies a delivery target.
type Channel int

const (
	ChannelPrimary Channel = iota
	ChannelSecondary
	ChannelAlert
)

// Channels lists every channel for exhaustive iteration.
var Channels = []Channel{ChannelPrimary, ChannelSecondary, ChannelAlert}

func (c Channel) String() string {
	switch c {
	case ChannelPrimary:
		return "primary"
	case ChannelSecondary:
		return "secondary"
	case ChannelAlert:
		return "alert"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Counter is a pair of ok/fail counts with the most recent error.
type Counter struct {
	OK          uint64    `json:"ok"`
	Fail        uint64    `json:"fail"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

// Stats tracks per-channel outcomes over a rolling window plus lifetime
// totals. Window counters reset atomically at wall-clock-aligned window
// boundaries; lifetime counters only grow.
type Stats struct {
	mu          sync.Mutex
	window      time.Duration
	windowStart time.Time
	win         map[Channel]*Counter
	life        map[Channel]*Counter
}

// NewStats creates stats with the given rolling window (1h in production).
func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{
		window: window,
		win:    emptyCounters(),
		life:   emptyCounters(),
	}
}

func emptyCounters() map[Channel]*Counter {
	m := make(map[Channel]*Counter, len(Channels))
	for _, c := range Channels {
		m[c] = &Counter{}
	}
	return m
}

// Bump records one attempt outcome at the given instant.
func (s *Stats) Bump(ch Channel, ok bool, errMsg string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked(now)

	for _, c := range []*Counter{s.win[ch], s.life[ch]} {
		if ok {
			c.OK++
		} else {
			c.Fail++
			c.LastError = errMsg
			c.LastErrorAt = now
		}
	}
}

// rollLocked resets window counters when the wall-clock window boundary
// has passed. Reset replaces the whole counter map in one step.
func (s *Stats) rollLocked(now time.Time) {
	aligned := now.Truncate(s.window)
	if s.windowStart.IsZero() {
		s.windowStart = aligned
		return
	}
	if !aligned.After(s.windowStart) {
		return
	}
	s.windowStart = aligned
	s.win = emptyCounters()
}

// Window returns a copy of the rolling-window counters as of now.
func (s *Stats) Window(now time.Time) map[Channel]Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked(now)
	return copyCounters(s.win)
}

// Lifetime returns a copy of the lifetime counters.
func (s *Stats) Lifetime() map[Channel]Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.life)
}

// RestoreLifetime seeds lifetime counters from persisted state.
func (s *Stats) RestoreLifetime(counters map[Channel]Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, c := range counters {
		cp := c
		s.life[ch] = &cp
	}
}

func copyCounters(m map[Channel]*Counter) map[Channel]Counter {
	out := make(map[Channel]Counter, len(m))
	for ch, c := range m {
		out[ch] = *c
	}
	return out
}
