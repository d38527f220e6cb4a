package thermal

import (
	"context"
	"testing"
	"time"
)

func TestMailboxPublishThenGet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMailbox(ctx)

	m.Publish(Frame{Seq: 1})
	frame, ok := m.Get(ctx)
	if !ok {
		t.Fatalf("expected a frame")
	}
	if frame.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", frame.Seq)
	}
}

func TestMailboxOverwriteDropsUnconsumedFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMailbox(ctx)

	m.Publish(Frame{Seq: 1})
	m.Publish(Frame{Seq: 2})

	if got := m.DropCount(); got != 1 {
		t.Fatalf("DropCount = %d, want 1", got)
	}
	frame, ok := m.Get(ctx)
	if !ok || frame.Seq != 2 {
		t.Fatalf("Get = (%+v, %v), want (Seq:2, true)", frame, ok)
	}
}

func TestMailboxGetBlocksUntilPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMailbox(ctx)

	result := make(chan Frame, 1)
	go func() {
		frame, ok := m.Get(ctx)
		if ok {
			result <- frame
		}
	}()

	time.Sleep(10 * time.Millisecond)
	m.Publish(Frame{Seq: 7})

	select {
	case frame := <-result:
		if frame.Seq != 7 {
			t.Fatalf("Seq = %d, want 7", frame.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for blocked Get to wake")
	}
}

func TestMailboxGetReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMailbox(ctx)

	done := make(chan struct{})
	go func() {
		_, ok := m.Get(ctx)
		if ok {
			t.Error("expected ok=false after cancellation")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancelled Get to return")
	}
}
