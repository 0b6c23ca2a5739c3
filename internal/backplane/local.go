package backplane

import "context"

// Local is the single-process backplane: publish loops straight back to
// the local handler.
type Local struct {
	handler Handler
}

// NewLocal constructs a loopback backplane.
func NewLocal() *Local {
	return &Local{}
}

// Publish delivers the payload synchronously to the local handler.
func (l *Local) Publish(_ context.Context, channelID string, payload []byte) error {
	if l.handler != nil {
		l.handler(channelID, payload)
	}
	return nil
}

// Subscribe registers the delivery handler.
func (l *Local) Subscribe(h Handler) {
	l.handler = h
}

// Close is a no-op for the loopback backplane.
func (l *Local) Close() error {
	return nil
}
