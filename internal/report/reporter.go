// Package report tracks pipeline phase, per-cycle outcome summaries, and
// a bounded event trail so an external reader can answer "what is the
// notifier doing right now and what happened recently" without touching
// pipeline internals.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/abelbrown/newswire/internal/deliver"
)

// Phase is the pipeline's current stage within a cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseFiltering
	PhasePushingSingle
	PhasePushingSummary
	PhaseCycleDone
	PhaseFetchError
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhaseRunning:        "running",
	PhaseFiltering:      "filtering",
	PhasePushingSingle:  "pushing_single",
	PhasePushingSummary: "pushing_summary",
	PhaseCycleDone:      "cycle_done",
	PhaseFetchError:     "fetch_error",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// CycleSummary is the outcome of one poll cycle.
type CycleSummary struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	New          int       `json:"new"`
	PushedOK     int       `json:"pushed_ok"`
	PushedFail   int       `json:"pushed_fail"`
	SourcesOK    int       `json:"sources_ok"`
	SourcesFail  int       `json:"sources_fail"`
	SkippedSeen  int       `json:"skipped_seen"`
	SkippedOld   int       `json:"skipped_old"`
	SkippedMajor int       `json:"skipped_major"`
	SkippedLang  int       `json:"skipped_lang"`
	NightBuffer  int       `json:"night_buffer"`
	LowBuffer    int       `json:"low_buffer"`
	Evicted      int       `json:"evicted"`
	Err          string    `json:"error,omitempty"`
}

// Status is a point-in-time read model of the pipeline; safe to hand to
// callers as it shares no state with the reporter.
type Status struct {
	Phase       string                              `json:"phase"`
	Running     bool                                `json:"running"`
	StartedAt   time.Time                           `json:"started_at"`
	LastCycleAt time.Time                           `json:"last_cycle_at"`
	LastPushAt  time.Time                           `json:"last_push_at,omitempty"`
	LastError   string                              `json:"last_error,omitempty"`
	LastErrorAt time.Time                           `json:"last_error_at,omitempty"`
	LastCycle   CycleSummary                        `json:"last_cycle"`
	Window      map[deliver.Channel]deliver.Counter `json:"window"`
	Lifetime    map[deliver.Channel]deliver.Counter `json:"lifetime"`
	Events      []Event                             `json:"events"`
}

// Reporter collects phase transitions and cycle summaries. All methods
// are safe for concurrent use.
type Reporter struct {
	mu         sync.Mutex
	phase      Phase
	startedAt  time.Time
	lastCycle  CycleSummary
	lastPushAt time.Time
	lastErr    string
	lastErrAt  time.Time
	events     *RingBuffer
	stats      *deliver.Stats
	clock      func() time.Time
}

// NewReporter creates a reporter backed by the given delivery stats.
func NewReporter(stats *deliver.Stats) *Reporter {
	return &Reporter{
		phase:     PhaseIdle,
		startedAt: time.Now(),
		events:    NewRingBuffer(DefaultRingSize),
		stats:     stats,
		clock:     time.Now,
	}
}

// SetPhase records a phase transition and emits an event line.
func (r *Reporter) SetPhase(p Phase) {
	r.mu.Lock()
	prev := r.phase
	r.phase = p
	r.mu.Unlock()
	if prev != p {
		r.Eventf("phase %s -> %s", prev, p)
	}
}

// Phase returns the current phase.
func (r *Reporter) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// CycleDone records the finished cycle's summary and moves to cycle_done,
// or fetch_error if the summary carries an error.
func (r *Reporter) CycleDone(sum CycleSummary) {
	r.mu.Lock()
	r.lastCycle = sum
	if sum.Err != "" {
		r.lastErr = sum.Err
		r.lastErrAt = r.clock()
		r.phase = PhaseFetchError
	} else {
		r.phase = PhaseCycleDone
	}
	r.mu.Unlock()

	r.Eventf("cycle done: new=%d pushed=%d/%d sources=%d/%d buffered night=%d low=%d",
		sum.New, sum.PushedOK, sum.PushedOK+sum.PushedFail,
		sum.SourcesOK, sum.SourcesOK+sum.SourcesFail,
		sum.NightBuffer, sum.LowBuffer)
}

// RecordError notes a non-cycle error (delivery, persistence) without
// changing phase. The error instant is retained alongside the message.
func (r *Reporter) RecordError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.lastErr = err.Error()
	r.lastErrAt = r.clock()
	r.mu.Unlock()
	r.Eventf("error: %v", err)
}

// RecordPush notes the instant of a successful delivery.
func (r *Reporter) RecordPush(at time.Time) {
	r.mu.Lock()
	if at.After(r.lastPushAt) {
		r.lastPushAt = at
	}
	r.mu.Unlock()
}

// Eventf appends a formatted line to the event trail.
func (r *Reporter) Eventf(format string, args ...any) {
	r.events.Push(Event{At: r.clock(), Line: fmt.Sprintf(format, args...)})
}

// Snapshot assembles the current read model. The event slice holds up to
// n recent lines, oldest first.
func (r *Reporter) Snapshot(n int) Status {
	r.mu.Lock()
	st := Status{
		Phase:       r.phase.String(),
		Running:     r.phase != PhaseIdle,
		StartedAt:   r.startedAt,
		LastCycleAt: r.lastCycle.FinishedAt,
		LastPushAt:  r.lastPushAt,
		LastError:   r.lastErr,
		LastErrorAt: r.lastErrAt,
		LastCycle:   r.lastCycle,
	}
	r.mu.Unlock()

	if r.stats != nil {
		st.Window = r.stats.Window(r.clock())
		st.Lifetime = r.stats.Lifetime()
	}
	st.Events = r.events.Last(n)
	return st
}
