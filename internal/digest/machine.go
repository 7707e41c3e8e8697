package digest

import (
	"fmt"
	"time"
)

// Mode is the delivery mode the state machine is in.
type Mode int

const (
	// Active means items are delivered immediately as they arrive.
	Active Mode = iota
	// Quiet means items are buffered for the end-of-window digest.
	Quiet
)

func (m Mode) String() string {
	if m == Quiet {
		return "quiet"
	}
	return "active"
}

// Machine decides the current mode from the wall clock alone. Transitions
// happen on configured hour boundaries in the configured timezone, never
// on external events.
type Machine struct {
	startHour int
	endHour   int
	loc       *time.Location
}

// NewMachine creates a quiet-hours machine. A window may wrap midnight
// (start 23, end 9 means 23:00-08:59 is quiet).
func NewMachine(startHour, endHour int, loc *time.Location) *Machine {
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{startHour: startHour, endHour: endHour, loc: loc}
}

// Mode returns the mode at the given instant.
func (m *Machine) Mode(now time.Time) Mode {
	h := now.In(m.loc).Hour()
	if m.startHour < m.endHour {
		if h >= m.startHour && h < m.endHour {
			return Quiet
		}
		return Active
	}
	if h >= m.startHour || h < m.endHour {
		return Quiet
	}
	return Active
}

// DigestDue reports whether the quiet-window digest should flush now:
// the window has ended for the local day and no digest was sent for that
// day yet. lastDigestDate is the YYYY-MM-DD of the last flush, persisted
// so a restart cannot double-send.
func (m *Machine) DigestDue(now time.Time, lastDigestDate string) bool {
	local := now.In(m.loc)
	if m.Mode(now) == Quiet {
		return false
	}
	if local.Hour() < m.endHour {
		return false
	}
	return lastDigestDate != DateKey(now, m.loc)
}

// DateKey formats the local calendar date used to mark a digest sent.
func DateKey(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

// SlotDue reports whether a low-heat digest slot is due: the local hour
// is one of the configured slots and that slot has not flushed yet today.
// The returned key is persisted as lastSlot on flush.
func SlotDue(now time.Time, loc *time.Location, slots []int, lastSlot string) (string, bool) {
	local := now.In(loc)
	for _, h := range slots {
		if local.Hour() == h {
			key := fmt.Sprintf("%s-%02d", local.Format("2006-01-02"), h)
			return key, key != lastSlot
		}
	}
	return "", false
}
