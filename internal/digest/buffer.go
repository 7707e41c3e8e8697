// Package digest implements the quiet-hours buffering state machine: a
// bounded topic-keyed buffer that accumulates articles while delivery is
// suppressed, and the grouped message rendering used when it flushes.
package digest

import (
	"sync"
	"time"

	"github.com/abelbrown/newswire/internal/feeds"
)

// Entry is one buffered article awaiting a digest flush. Heat is the
// score at enqueue time; it is recomputed at flush so ranking follows the
// clock.
type Entry struct {
	Article    feeds.Article `json:"article"`
	Topic      string        `json:"topic"`
	Heat       float64       `json:"heat"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// Buffer is a bounded, insertion-ordered multiset of entries. When an
// enqueue would exceed capacity the oldest entry is evicted synchronously,
// so the bound holds after every Add. Evictions are counted: sustained
// overload during a long quiet window is lossy and must be observable.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	evicted  uint64
}

// NewBuffer creates a buffer holding at most capacity entries in total
// (across all topics).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{capacity: capacity}
}

// Add enqueues an entry unless the same article identity is already
// buffered. Returns true when the entry was added.
func (b *Buffer) Add(e Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cur := range b.entries {
		if cur.Article.ID == e.Article.ID {
			return false
		}
	}

	b.entries = append(b.entries, e)
	for len(b.entries) > b.capacity {
		b.entries = b.entries[1:] // oldest first
		b.evicted++
	}
	return true
}

// DrainTopic removes and returns all entries for the given topic,
// preserving enqueue order. The sentinel AllTopics drains everything.
func (b *Buffer) DrainTopic(topic string) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if topic == AllTopics {
		out := b.entries
		b.entries = nil
		return out
	}

	var out, keep []Entry
	for _, e := range b.entries {
		if e.Topic == topic {
			out = append(out, e)
		} else {
			keep = append(keep, e)
		}
	}
	b.entries = keep
	return out
}

// AllTopics is the manual-push sentinel matching every topic.
const AllTopics = "__ALL__"

// Requeue puts entries back at the front of the buffer, used when a flush
// partially fails and the remainder must survive to the next attempt.
// Capacity still holds; excess oldest entries are evicted.
func (b *Buffer) Requeue(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(append([]Entry{}, entries...), b.entries...)
	for len(b.entries) > b.capacity {
		b.entries = b.entries[1:]
		b.evicted++
	}
}

// Len returns the buffered entry count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Evicted returns the lifetime eviction count.
func (b *Buffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

// Snapshot copies the buffered entries in enqueue order for persistence.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Restore replaces the buffer contents from a persisted snapshot,
// enforcing capacity.
func (b *Buffer) Restore(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append([]Entry{}, entries...)
	for len(b.entries) > b.capacity {
		b.entries = b.entries[1:]
		b.evicted++
	}
}
