package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/internal/backplane"
	"github.com/chatgate/chatgate/internal/store"
)

// frame is the backplane encoding of a broadcast event. Error events are
// sender-only and never cross the backplane.
type frame struct {
	Kind    EventKind      `json:"kind"`
	Channel string         `json:"channel"`
	Message *store.Message `json:"message,omitempty"`
	Typing  *TypingEvent   `json:"typing,omitempty"`
}

// Broadcaster delivers a published event to every session subscribed to
// a channel. Delivery is per-session independent: a slow subscriber
// never blocks the rest, it is evicted instead.
type Broadcaster struct {
	registry  *Registry
	backplane backplane.Backplane
	log       *zerolog.Logger
}

// NewBroadcaster wires the registry to the backplane and registers the
// local delivery handler.
func NewBroadcaster(registry *Registry, bp backplane.Backplane, logger *zerolog.Logger) *Broadcaster {
	b := &Broadcaster{
		registry:  registry,
		backplane: bp,
		log:       logger,
	}
	bp.Subscribe(b.deliver)
	return b
}

// Publish hands an event to the backplane for the target channel. The
// backplane loops it back to this process (and any peers), where deliver
// fans it out to local subscribers.
func (b *Broadcaster) Publish(ctx context.Context, channelID string, ev *Event) error {
	payload, err := json.Marshal(frame{
		Kind:    ev.Kind,
		Channel: channelID,
		Message: ev.Message,
		Typing:  ev.Typing,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.backplane.Publish(ctx, channelID, payload); err != nil {
		return fmt.Errorf("backplane publish: %w", err)
	}
	return nil
}

// deliver fans a backplane payload out to the channel's current local
// subscribers.
func (b *Broadcaster) deliver(channelID string, payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		b.log.Error().Err(err).Str("channel_id", channelID).Msg("drop undecodable backplane payload")
		return
	}

	ev := &Event{
		Kind:    f.Kind,
		Channel: f.Channel,
		Message: f.Message,
		Typing:  f.Typing,
	}

	for _, sess := range b.registry.Snapshot(channelID) {
		b.enqueue(sess, ev)
	}
}

// enqueue places the event on one session's queue. A session whose
// queue cannot accept a chat message has fallen behind its delivery
// contract and is scheduled for disconnect rather than losing data
// silently.
func (b *Broadcaster) enqueue(sess *Session, ev *Event) {
	err := sess.Enqueue(ev)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrQueueOverflow):
		b.log.Warn().
			Str("session_id", sess.ID).
			Str("channel_id", ev.Channel).
			Msg("subscriber cannot keep up, evicting")
		sess.BeginClose()
	case errors.Is(err, ErrSessionClosed):
		// Session is on its way out; registry cleanup will follow.
	default:
		b.log.Error().Err(err).Str("session_id", sess.ID).Msg("enqueue outbound event")
	}
}
