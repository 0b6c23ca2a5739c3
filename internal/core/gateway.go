package core

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/internal/store"
)

const maxChannelIDLen = 255

// Authorizer decides whether a caller may join a channel. The gateway
// fails closed: an error counts as a denial.
type Authorizer interface {
	CanJoin(ctx context.Context, identity Identity, channelID string) (bool, error)
}

// MessageStore is the slice of the message store the gateway consumes.
// Create must be atomic and return a fully populated row.
type MessageStore interface {
	CreateMessage(ctx context.Context, channelID, senderID, text, originPortal string) (*store.Message, error)
}

// Gateway is the per-connection state machine. The connection worker
// invokes Handle for each inbound event in receipt order, so handlers
// run strictly sequentially for one session; only the registry, the
// broadcaster, and the store are shared with other workers.
type Gateway struct {
	session        *Session
	registry       *Registry
	broadcaster    *Broadcaster
	messages       MessageStore
	authz          Authorizer
	persistTimeout time.Duration
	log            zerolog.Logger
}

// NewGateway builds the state machine for one session.
func NewGateway(sess *Session, registry *Registry, broadcaster *Broadcaster, messages MessageStore, authz Authorizer, persistTimeout time.Duration, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		session:        sess,
		registry:       registry,
		broadcaster:    broadcaster,
		messages:       messages,
		authz:          authz,
		persistTimeout: persistTimeout,
		log:            logger.With().Str("session_id", sess.ID).Logger(),
	}
}

// Session returns the session this gateway drives.
func (g *Gateway) Session() *Session {
	return g.session
}

// Handle processes one inbound command.
func (g *Gateway) Handle(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandSubscribe:
		g.subscribe(ctx, cmd.Channel)
	case CommandSendMessage:
		g.sendMessage(ctx, cmd.Channel, cmd.Text)
	case CommandTypingStart:
		g.typing(ctx, cmd.Channel, true)
	case CommandTypingStop:
		g.typing(ctx, cmd.Channel, false)
	}
}

// subscribe adds the session to the channel's subscriber set. The
// gateway validates syntax and asks the authorizer; it does not verify
// channel existence itself. Subscribing twice is a no-op.
func (g *Gateway) subscribe(ctx context.Context, channelID string) {
	if !validChannelID(channelID) {
		g.reject(coreError(ErrCodeBadRequest, "channel_id is required"))
		return
	}
	if _, joined := g.session.channels[channelID]; joined {
		return
	}

	ok, err := g.authz.CanJoin(ctx, g.session.Identity, channelID)
	if err != nil {
		g.log.Warn().Err(err).Str("channel_id", channelID).Msg("authorizer error, denying join")
		g.reject(coreError(ErrCodeAccessDenied, "access denied"))
		return
	}
	if !ok {
		g.reject(coreError(ErrCodeAccessDenied, "access denied"))
		return
	}

	g.session.channels[channelID] = struct{}{}
	g.registry.Join(channelID, g.session)
}

// sendMessage persists the message, then broadcasts it. The two effects
// are a unit: nothing is broadcast unless the store acknowledged the
// write, and a successful write is always broadcast, even if the sender
// disconnects meanwhile.
func (g *Gateway) sendMessage(ctx context.Context, channelID, text string) {
	if !validChannelID(channelID) {
		g.reject(coreError(ErrCodeBadRequest, "channel_id is required"))
		return
	}
	if text == "" {
		g.reject(coreError(ErrCodeBadRequest, "text is required"))
		return
	}

	// An accepted write must complete regardless of the sender's
	// connection, so the persist context detaches from it.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.persistTimeout)
	defer cancel()

	msg, err := g.messages.CreateMessage(persistCtx, channelID, g.session.Identity.UserID, text, g.session.Identity.Portal)
	if err != nil {
		g.log.Error().Err(err).Str("channel_id", channelID).Msg("persist message")
		g.reject(coreError(ErrCodePersistFailed, "message could not be stored"))
		return
	}

	ev := &Event{Kind: EventMessageNew, Channel: channelID, Message: msg}
	if err := g.broadcaster.Publish(persistCtx, channelID, ev); err != nil {
		// The row exists; losing the broadcast would break the
		// stored-implies-broadcast contract, so tell the sender.
		g.log.Error().Err(err).Str("message_id", msg.ID).Msg("publish message")
		g.reject(coreError(ErrCodePersistFailed, "message stored but not delivered"))
	}
}

// typing broadcasts an ephemeral indicator. Fire and forget: no
// persistence, no retry, loss is acceptable.
func (g *Gateway) typing(ctx context.Context, channelID string, active bool) {
	if !validChannelID(channelID) {
		return
	}

	ev := &Event{
		Kind:    EventTypingUpdate,
		Channel: channelID,
		Typing: &TypingEvent{
			ChannelID: channelID,
			UserID:    g.session.Identity.UserID,
			IsTyping:  active,
		},
	}
	if err := g.broadcaster.Publish(ctx, channelID, ev); err != nil {
		g.log.Debug().Err(err).Str("channel_id", channelID).Msg("drop typing update")
	}
}

// Close runs the Closing -> Closed transition: the session leaves every
// group it joined and its queue is released. Callers defer this on the
// connection handler so cleanup happens on every exit path.
func (g *Gateway) Close() {
	g.session.BeginClose()
	for channelID := range g.session.channels {
		g.registry.Leave(channelID, g.session)
	}
	clear(g.session.channels)
	g.session.finishClose()
}

// reject surfaces an error event to the owning session only.
func (g *Gateway) reject(cerr *CoreError) {
	ev := &Event{Kind: EventError, Err: cerr}
	if err := g.session.Enqueue(ev); err != nil {
		g.log.Debug().Err(err).Str("code", cerr.Code).Msg("drop error event")
	}
}

func validChannelID(id string) bool {
	if id == "" || len(id) > maxChannelIDLen {
		return false
	}
	if strings.TrimSpace(id) != id {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
