package audio

import "sync"

// StrikeEvent is a single detected transient (spec.md §4.4 step 5).
type StrikeEvent struct {
	TimestampNS uint64
	Seq         uint32
	RMS         float32
}

// Queue is the bounded, drop-oldest FIFO of detected events shared
// between the detector worker and callers of GetEvents (spec.md §3,
// §4.4's "evict the oldest before pushing" discipline). Unlike the
// thermal Mailbox, every enqueued event is retained up to capacity;
// pushing past that discards the head rather than overwriting a
// single slot, since callers must observe every strike, not just the
// latest.
type Queue struct {
	mu       sync.Mutex
	capacity int
	events   []StrikeEvent
}

// NewQueue returns an empty Queue bounded at capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Push enqueues e, evicting the oldest event first if the queue is at
// capacity (spec.md §4.4's queue discipline). Never blocks. Reports
// whether an eviction occurred.
func (q *Queue) Push(e StrikeEvent) (evicted bool) {
	q.mu.Lock()
	if len(q.events) >= q.capacity {
		q.events = q.events[1:]
		evicted = true
	}
	q.events = append(q.events, e)
	q.mu.Unlock()
	return evicted
}

// Drain moves up to max queued events into the returned slice in FIFO
// order, clearing them from the queue (spec.md §4.5 get_events). If
// the queue holds more than max events, Drain returns (nil, false)
// and leaves the queue untouched — the caller's contract with
// Overflow (spec.md §4.5: "fails with Overflow if the queue holds
// more than max").
func (q *Queue) Drain(max int) ([]StrikeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) > max {
		return nil, false
	}
	out := q.events
	q.events = nil
	return out, true
}

// Len reports how many events are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
