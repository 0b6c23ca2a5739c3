package core

import "github.com/chatgate/chatgate/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventMessageNew carries a persisted chat message.
	EventMessageNew EventKind = iota
	// EventTypingUpdate carries an ephemeral typing indicator.
	EventTypingUpdate
	// EventError notifies the session about a rejected event.
	EventError
)

// TypingEvent is a transient typing indicator. It is never persisted and
// exists only as a broadcast payload.
type TypingEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

// Event is delivered to sessions to describe what happened.
type Event struct {
	Kind    EventKind
	Channel string
	Message *store.Message // non-nil for EventMessageNew
	Typing  *TypingEvent   // non-nil for EventTypingUpdate
	Err     *CoreError     // non-nil for EventError
}

// critical reports whether the event must never be dropped silently.
// Persisted chat messages are critical; typing updates are not.
func (e *Event) critical() bool {
	return e.Kind == EventMessageNew
}
