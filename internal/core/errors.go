package core

import "errors"

// Error codes surfaced to clients in error events.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeAccessDenied  = "access_denied"
	ErrCodePersistFailed = "persist_failed"
)

var (
	// ErrQueueOverflow is returned by a session's outbound queue when a
	// chat message cannot be queued even after shedding typing events.
	ErrQueueOverflow = errors.New("outbound queue overflow")
	// ErrSessionClosed is returned when enqueueing to a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
