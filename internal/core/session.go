package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// SessionState tracks the connection lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateClosed
)

// Identity is the externally verified caller behind a session. The
// gateway never authenticates; it assumes identity was established
// before the session became active.
type Identity struct {
	UserID string
	Portal string
	Role   string
}

// Session is one live client connection. It owns its subscription set
// and outbound queue; the registry holds only a weak reference that is
// pruned when the session ends. Sessions are never persisted.
type Session struct {
	ID       string
	Identity Identity

	queue    *outbox
	state    atomic.Int32
	closing  chan struct{}
	closeOne sync.Once

	// channels is mutated only by the session's own connection worker.
	channels map[string]struct{}
}

// NewSession constructs a session in the Connecting state.
func NewSession(id string, identity Identity, queueLimit int) *Session {
	return &Session{
		ID:       id,
		Identity: identity,
		queue:    newOutbox(queueLimit),
		closing:  make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Activate transitions Connecting -> Active. Entering Active joins no
// groups; the session subscribes to nothing until asked.
func (s *Session) Activate() {
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// BeginClose transitions the session to Closing and signals the
// connection worker to tear the transport down. Safe to call from any
// goroutine, any number of times.
func (s *Session) BeginClose() {
	s.closeOne.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.closing)
	})
}

// Closing is closed once the session is scheduled for disconnect.
func (s *Session) Closing() <-chan struct{} {
	return s.closing
}

// Enqueue places an event on the outbound queue, applying the
// backpressure policy. Returns ErrQueueOverflow when a chat message
// cannot be queued; the caller must treat the session as unhealthy.
func (s *Session) Enqueue(ev *Event) error {
	if s.State() >= StateClosing {
		return ErrSessionClosed
	}
	return s.queue.push(ev)
}

// NextEvent blocks until the next outbound event is available.
func (s *Session) NextEvent(ctx context.Context) (*Event, error) {
	return s.queue.pop(ctx)
}

// QueueLen reports the number of pending outbound events.
func (s *Session) QueueLen() int {
	return s.queue.len()
}

// finishClose releases the outbound queue and marks the session Closed.
func (s *Session) finishClose() {
	s.BeginClose()
	s.queue.close()
	s.state.Store(int32(StateClosed))
}
