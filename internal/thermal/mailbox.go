package thermal

import (
	"context"
	"sync"
)

// Mailbox is the single-slot, overwrite-on-publish handoff between the
// assembler worker and consumers of completed Frames (spec.md §3, §5).
// It is the thermal analogue of framesupplier's WorkerSlot, stripped down
// to its single-producer/single-consumer case: one assembler goroutine
// publishes, callers Get, and a publish always wins over a stale
// unconsumed frame rather than blocking the producer.
type Mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame
	fresh bool

	dropCount uint64
}

// NewMailbox starts a Mailbox bound to ctx. Once ctx is done, blocked Get
// calls wake, and any Get that finds no fresh frame pending returns
// immediately with ok=false (a frame published before cancellation and not
// yet consumed is still returned), mirroring the cancel-then-broadcast
// shutdown framesupplier's distributionLoop uses.
func NewMailbox(ctx context.Context) *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	}()
	return m
}

// Publish overwrites the mailbox's contents and wakes a blocked Get.
// Non-blocking; if the previous frame was never consumed it is dropped
// and DropCount is incremented (spec.md §5's JIT overwrite semantics).
func (m *Mailbox) Publish(frame Frame) {
	m.mu.Lock()
	if m.fresh {
		m.dropCount++
	}
	m.frame = &frame
	m.fresh = true
	m.cond.Signal()
	m.mu.Unlock()
}

// Get blocks until a fresh frame is published or ctx (the one the Mailbox
// was constructed with) is done, in which case it returns (Frame{}, false).
func (m *Mailbox) Get(ctx context.Context) (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.fresh && ctx.Err() == nil {
		m.cond.Wait()
	}
	if !m.fresh {
		return Frame{}, false
	}
	frame := *m.frame
	m.fresh = false
	return frame, true
}

// DropCount returns how many published frames were overwritten before a
// consumer ever observed them.
func (m *Mailbox) DropCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropCount
}
