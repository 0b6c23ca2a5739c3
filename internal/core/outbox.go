package core

import (
	"context"
	"sync"
)

// outbox is a session's bounded outbound queue. When full, the oldest
// queued typing event is shed to make room; an incoming typing event is
// dropped outright; a chat message that still cannot fit surfaces
// ErrQueueOverflow so the caller can evict the session.
type outbox struct {
	mu     sync.Mutex
	buf    []*Event
	limit  int
	notify chan struct{}
	closed bool
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = 1
	}
	return &outbox{
		buf:    make([]*Event, 0, limit),
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

func (q *outbox) push(ev *Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrSessionClosed
	}

	if len(q.buf) >= q.limit {
		if !q.shedTyping() {
			if !ev.critical() {
				// Typing updates are lossy; at-most-once is fine.
				return nil
			}
			return ErrQueueOverflow
		}
	}

	q.buf = append(q.buf, ev)
	q.signal()
	return nil
}

// shedTyping removes the oldest queued non-critical event.
// Caller must hold q.mu.
func (q *outbox) shedTyping() bool {
	for i, e := range q.buf {
		if !e.critical() {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			return true
		}
	}
	return false
}

// pop blocks until an event is available, the queue is closed, or the
// context is done.
func (q *outbox) pop(ctx context.Context) (*Event, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			ev := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrSessionClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *outbox) close() {
	q.mu.Lock()
	q.closed = true
	q.buf = nil
	q.mu.Unlock()
	q.signal()
}

func (q *outbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *outbox) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
