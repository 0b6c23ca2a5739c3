package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/internal/auth"
	"github.com/chatgate/chatgate/internal/config"
	"github.com/chatgate/chatgate/internal/core"
	"github.com/chatgate/chatgate/internal/proto"
)

// WSHandler upgrades HTTP connections and runs one gateway per
// connection until the session closes.
type WSHandler struct {
	registry    *core.Registry
	broadcaster *core.Broadcaster
	messages    core.MessageStore
	authz       core.Authorizer
	jwtConfig   *auth.JWTConfig
	cfg         config.Config
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, broadcaster *core.Broadcaster, messages core.MessageStore, authz core.Authorizer, jwtConfig *auth.JWTConfig, cfg config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry:    registry,
		broadcaster: broadcaster,
		messages:    messages,
		authz:       authz,
		jwtConfig:   jwtConfig,
		cfg:         cfg,
		log:         logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// Identity must be established before any session state exists;
	// an unverifiable caller is rejected at the door.
	claims, err := h.identify(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sess := core.NewSession(uuid.NewString(), core.Identity{
		UserID: claims.UserID,
		Portal: claims.Portal,
		Role:   claims.Role,
	}, h.cfg.SessionQueueSize)

	gw := core.NewGateway(sess, h.registry, h.broadcaster, h.messages, h.authz, h.cfg.PersistTimeout, h.log)
	// Cleanup is tied to the handler's lifetime, not to any particular
	// exit path: every return leaves no registry entry behind.
	defer gw.Close()

	sess.Activate()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Eviction (queue overflow, protocol fault elsewhere) flips the
	// session to Closing; tear the transport down when that happens.
	go func() {
		select {
		case <-sess.Closing():
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, gw)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutines
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) || errors.Is(err, core.ErrSessionClosed) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// identify extracts and verifies the caller's token from the query
// string or the Authorization header.
func (h *WSHandler) identify(r *stdhttp.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return auth.ValidateToken(h.jwtConfig, token)
}

// readLoop decodes inbound envelopes and feeds them to the gateway in
// receipt order. Events from one connection are never reordered or
// processed concurrently.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, gw *core.Gateway) error {
	for {
		readCtx := ctx
		cancel := func() {}
		if h.cfg.IdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, h.cfg.IdleTimeout)
		}

		var inbound proto.Inbound
		err := wsjson.Read(readCtx, conn, &inbound)
		cancel()
		if err != nil {
			return err
		}

		cmd, ok := inboundToCommand(inbound)
		if !ok {
			h.log.Debug().Str("action", inbound.Action).Msg("ignore unknown action")
			continue
		}
		gw.Handle(ctx, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		event, err := sess.NextEvent(ctx)
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
			h.log.Error().Err(err).Str("session_id", sess.ID).Msg("write ws event")
			return err
		}
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if h.cfg.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
