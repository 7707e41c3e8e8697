// Package state persists the pipeline's durable record: the dedup set,
// the digest buffers, and lifetime counters, as one versioned JSON
// document. Writes go through a temp file and rename so a crash mid-save
// leaves the previous cycle's state intact.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abelbrown/newswire/internal/deliver"
	"github.com/abelbrown/newswire/internal/digest"
)

// SchemaVersion is bumped when the snapshot layout changes.
const SchemaVersion = 1

// SeenRecord is one dedup entry in the persisted form.
type SeenRecord struct {
	ID        string    `json:"id"`
	FirstSeen time.Time `json:"first_seen"`
}

// Counters are the lifetime pipeline totals carried across restarts.
type Counters struct {
	CyclesRun     uint64                              `json:"cycles_run"`
	PushedOK      uint64                              `json:"pushed_ok"`
	PushedFail    uint64                              `json:"pushed_fail"`
	NightEvicted  uint64                              `json:"night_evicted"`
	LowEvicted    uint64                              `json:"low_evicted"`
	Delivery      map[deliver.Channel]deliver.Counter `json:"-"`
	DeliveryByKey map[string]deliver.Counter          `json:"delivery"`
}

// Snapshot is the single versioned persisted record. Unknown future
// fields are ignored on load, never fatal.
type Snapshot struct {
	Version        int            `json:"version"`
	Initialized    bool           `json:"initialized"`
	Seen           []SeenRecord   `json:"seen"`
	NightBuffer    []digest.Entry `json:"night_buffer"`
	LowBuffer      []digest.Entry `json:"low_buffer"`
	LastDigestDate string         `json:"last_digest_date"`
	LastLowSlot    string         `json:"last_low_slot"`
	Counters       Counters       `json:"counters"`
}

// Error marks a persistence failure; fatal to the cycle that hits it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("state %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Empty returns the snapshot a fresh deployment starts from.
func Empty() Snapshot {
	return Snapshot{Version: SchemaVersion}
}

// Load reads the snapshot. A missing file yields Empty() and no error; an
// unreadable or unparseable file is a persistence error.
func Load(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Empty(), nil
		}
		return Snapshot{}, &Error{Op: "load", Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, &Error{Op: "load", Err: err}
	}
	if snap.Version == 0 {
		snap.Version = SchemaVersion
	}
	if snap.Counters.DeliveryByKey != nil {
		snap.Counters.Delivery = make(map[deliver.Channel]deliver.Counter)
		for _, ch := range deliver.Channels {
			if c, ok := snap.Counters.DeliveryByKey[ch.String()]; ok {
				snap.Counters.Delivery[ch] = c
			}
		}
	}
	return snap, nil
}

// Save writes the snapshot atomically. Marshal order is deterministic
// (seen records sorted by id), so loading and saving with no intervening
// mutation reproduces identical bytes.
func Save(path string, snap Snapshot) error {
	snap.Version = SchemaVersion
	sort.Slice(snap.Seen, func(i, j int) bool { return snap.Seen[i].ID < snap.Seen[j].ID })

	if snap.Counters.Delivery != nil {
		snap.Counters.DeliveryByKey = make(map[string]deliver.Counter, len(snap.Counters.Delivery))
		for ch, c := range snap.Counters.Delivery {
			snap.Counters.DeliveryByKey[ch.String()] = c
		}
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &Error{Op: "save", Err: err}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return &Error{Op: "save", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &Error{Op: "save", Err: err}
	}
	return nil
}

// SeenMap converts persisted records to the dedup store form.
func (s Snapshot) SeenMap() map[string]time.Time {
	out := make(map[string]time.Time, len(s.Seen))
	for _, r := range s.Seen {
		out[r.ID] = r.FirstSeen
	}
	return out
}

// SeenRecords converts a dedup snapshot to the persisted form. Output is
// sorted for determinism.
func SeenRecords(seen map[string]time.Time) []SeenRecord {
	out := make([]SeenRecord, 0, len(seen))
	for id, ts := range seen {
		out = append(out, SeenRecord{ID: id, FirstSeen: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
