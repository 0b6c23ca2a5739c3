package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatgate/chatgate/internal/store"
)

func messageEvent(id string) *Event {
	return &Event{Kind: EventMessageNew, Channel: "c", Message: &store.Message{ID: id, ChannelID: "c"}}
}

func typingEvent() *Event {
	return &Event{Kind: EventTypingUpdate, Channel: "c", Typing: &TypingEvent{ChannelID: "c"}}
}

func TestOutboxFIFO(t *testing.T) {
	q := newOutbox(4)

	first := typingEvent()
	second := messageEvent("m1")
	if err := q.push(first); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.push(second); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := q.pop(ctx)
	if err != nil || got != first {
		t.Fatalf("expected first event, got %v (%v)", got, err)
	}
	got, err = q.pop(ctx)
	if err != nil || got != second {
		t.Fatalf("expected second event, got %v (%v)", got, err)
	}
}

func TestOutboxShedsOldestTypingForMessage(t *testing.T) {
	q := newOutbox(2)

	if err := q.push(typingEvent()); err != nil {
		t.Fatalf("push typing: %v", err)
	}
	if err := q.push(messageEvent("m1")); err != nil {
		t.Fatalf("push message: %v", err)
	}
	// Full. A chat message must displace the queued typing event.
	if err := q.push(messageEvent("m2")); err != nil {
		t.Fatalf("push message over full queue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range []string{"m1", "m2"} {
		ev, err := q.pop(ctx)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if ev.Kind != EventMessageNew {
			t.Fatalf("typing event should have been shed, got kind %v", ev.Kind)
		}
		if ev.Message.ID != want {
			t.Fatalf("messages reordered: got %q, want %q", ev.Message.ID, want)
		}
	}
}

func TestOutboxDropsTypingWhenFullOfMessages(t *testing.T) {
	q := newOutbox(2)
	q.push(messageEvent("m1"))
	q.push(messageEvent("m2"))

	if err := q.push(typingEvent()); err != nil {
		t.Fatalf("typing overflow must be silent, got %v", err)
	}
	if q.len() != 2 {
		t.Fatalf("typing event should have been dropped, queue has %d", q.len())
	}
}

func TestOutboxOverflowIsSurfacedForMessages(t *testing.T) {
	q := newOutbox(2)
	q.push(messageEvent("m1"))
	q.push(messageEvent("m2"))

	err := q.push(messageEvent("m3"))
	if !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("expected ErrQueueOverflow, got %v", err)
	}
}

func TestOutboxCloseUnblocksPop(t *testing.T) {
	q := newOutbox(2)

	done := make(chan error, 1)
	go func() {
		_, err := q.pop(context.Background())
		done <- err
	}()

	q.close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("expected ErrSessionClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not return after close")
	}

	if err := q.push(messageEvent("m1")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("push after close should fail, got %v", err)
	}
}
