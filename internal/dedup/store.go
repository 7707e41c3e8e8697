// Package dedup tracks which article identities the pipeline has already
// handled. The store is the single-writer dedup resource: fetch may run
// concurrently, but IsNew/Record calls are serialized by the internal
// mutex so a check-then-record sequence cannot double-insert.
package dedup

import (
	"sync"
	"time"
)

// Store is an O(1) membership set of seen article identities with their
// first-seen timestamps.
type Store struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{seen: make(map[string]time.Time)}
}

// IsNew reports whether the identity has never been recorded.
func (s *Store) IsNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return !ok
}

// Record marks an identity seen at ts. Recording an already-seen identity
// keeps the earlier timestamp, so the first-seen time is stable.
func (s *Store) Record(id string, ts time.Time) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; !ok {
		s.seen[id] = ts
	}
}

// Prune drops entries first seen before the retention horizon. Advisory
// housekeeping only: correctness never depends on it. Returns the number
// of entries removed.
func (s *Store) Prune(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, id)
			removed++
		}
	}
	return removed
}

// Len returns the current membership count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Snapshot returns a copy of the membership map for persistence.
func (s *Store) Snapshot() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.seen))
	for id, ts := range s.seen {
		out[id] = ts
	}
	return out
}

// Restore replaces the membership set from a persisted snapshot.
func (s *Store) Restore(seen map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]time.Time, len(seen))
	for id, ts := range seen {
		if id != "" {
			s.seen[id] = ts
		}
	}
}
