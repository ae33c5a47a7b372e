package realtime

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestBufferEnqueueTake(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBuffer(10, time.Hour, clock)

	b.Enqueue("u1", NewFrame(FrameQueueNotification, clock.Now(), map[string]any{"queueId": "q1"}))
	b.Enqueue("u2", NewFrame(FrameNoShow, clock.Now(), nil))
	b.Enqueue("u1", NewFrame(FramePositionUpdate, clock.Now(), nil))

	got := b.TakeFor("u1")
	if len(got) != 2 {
		t.Fatalf("expected 2 frames for u1, got %d", len(got))
	}
	if got[0].Type() != FrameQueueNotification || got[1].Type() != FramePositionUpdate {
		t.Fatalf("wrong order: %s, %s", got[0].Type(), got[1].Type())
	}
	if b.Len() != 1 {
		t.Fatalf("u2 frame should remain, len=%d", b.Len())
	}
	if again := b.TakeFor("u1"); len(again) != 0 {
		t.Fatalf("second take should be empty, got %d", len(again))
	}
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBuffer(3, time.Hour, clock)

	for _, id := range []string{"a", "b", "c", "d"} {
		b.Enqueue("u1", NewFrame(FrameQueueUpdate, clock.Now(), map[string]any{"id": id}))
	}
	got := b.TakeFor("u1")
	if len(got) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(got))
	}
	if got[0]["id"] != "b" {
		t.Fatalf("oldest frame should have been dropped, first is %v", got[0]["id"])
	}
}

func TestBufferExpiresOldFrames(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBuffer(10, time.Hour, clock)

	b.Enqueue("u1", NewFrame(FrameQueueUpdate, clock.Now(), map[string]any{"id": "old"}))
	clock.Advance(61 * time.Minute)
	b.Enqueue("u1", NewFrame(FrameQueueUpdate, clock.Now(), map[string]any{"id": "fresh"}))

	got := b.TakeFor("u1")
	if len(got) != 1 || got[0]["id"] != "fresh" {
		t.Fatalf("expected only the fresh frame, got %+v", got)
	}
}
