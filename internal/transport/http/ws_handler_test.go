package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/internal/auth"
	"github.com/chatgate/chatgate/internal/backplane"
	"github.com/chatgate/chatgate/internal/config"
	"github.com/chatgate/chatgate/internal/core"
	"github.com/chatgate/chatgate/internal/proto"
	"github.com/chatgate/chatgate/internal/store"
	"github.com/chatgate/chatgate/internal/store/sqlite"
)

type testServer struct {
	ts      *httptest.Server
	store   *sqlite.SQLiteStore
	jwtCfg  *auth.JWTConfig
	channel *store.Channel
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.Nop()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	channel, err := st.CreateChannel(context.Background(), "general", store.ChannelTypePublic,
		[]string{"employee"}, nil, "system")
	if err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	cfg := config.Default()
	cfg.SessionQueueSize = 16
	cfg.PersistTimeout = time.Second
	cfg.PingInterval = 0
	cfg.IdleTimeout = 0

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}

	registry := core.NewRegistry()
	broadcaster := core.NewBroadcaster(registry, backplane.NewLocal(), &logger)
	authz := auth.NewStoreAuthorizer(st)

	ws := NewWSHandler(registry, broadcaster, st, authz, jwtCfg, cfg, &logger)
	server := NewServer(ws, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, store: st, jwtCfg: jwtCfg, channel: channel}
}

func (s *testServer) wsURL() string {
	return strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := auth.GenerateToken(s.jwtCfg, userID, "employee", "member")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (s *testServer) dial(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, s.wsURL()+"?token="+s.token(t, userID), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

type outboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var frame outboundFrame
	if err := wsjson.Read(readCtx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func expectSilence(ctx context.Context, t *testing.T, conn *websocket.Conn) {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	var frame outboundFrame
	if err := wsjson.Read(readCtx, conn, &frame); err == nil {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t)

	resp, err := s.ts.Client().Get(s.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	s := startTestServer(t)

	for name, url := range map[string]string{
		"missing": s.ts.URL + "/ws",
		"garbage": s.ts.URL + "/ws?token=not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := s.ts.Client().Get(url)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != stdhttp.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestSubscribeSendReceive(t *testing.T) {
	s := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := s.dial(ctx, t, "alice")
	bob := s.dial(ctx, t, "bob")

	subscribe := proto.Inbound{Action: proto.ActionSubscribe, ChannelID: s.channel.ID}
	if err := wsjson.Write(ctx, alice, subscribe); err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	if err := wsjson.Write(ctx, bob, subscribe); err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}

	// Subscribes carry no acknowledgement; give the sequential
	// handlers a beat before publishing.
	time.Sleep(100 * time.Millisecond)

	send := proto.Inbound{Action: proto.ActionMessageSend, ChannelID: s.channel.ID, Text: "hi"}
	if err := wsjson.Write(ctx, alice, send); err != nil {
		t.Fatalf("send message: %v", err)
	}

	var messageID string
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		frame := readFrame(ctx, t, conn)
		if frame.Event != proto.EventMessageNew {
			t.Fatalf("%s: expected message:new, got %q", name, frame.Event)
		}

		var data proto.MessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			t.Fatalf("%s: decode data: %v", name, err)
		}
		if data.ChannelID != s.channel.ID || data.Text != "hi" || data.SenderID != "alice" {
			t.Fatalf("%s: unexpected payload: %+v", name, data)
		}
		if data.ID == "" || data.CreatedAt == "" {
			t.Fatalf("%s: payload missing persisted identity: %+v", name, data)
		}
		messageID = data.ID

		expectSilence(ctx, t, conn) // exactly once each
	}

	msg, err := s.store.GetMessageByID(context.Background(), messageID)
	if err != nil {
		t.Fatalf("message not persisted: %v", err)
	}
	if msg.ChannelID != s.channel.ID || msg.Text != "hi" {
		t.Fatalf("persisted row mismatch: %+v", msg)
	}
}

func TestTypingUpdateDelivered(t *testing.T) {
	s := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := s.dial(ctx, t, "alice")
	bob := s.dial(ctx, t, "bob")

	if err := wsjson.Write(ctx, bob, proto.Inbound{Action: proto.ActionSubscribe, ChannelID: s.channel.ID}); err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := wsjson.Write(ctx, alice, proto.Inbound{Action: proto.ActionTypingStart, ChannelID: s.channel.ID}); err != nil {
		t.Fatalf("typing start: %v", err)
	}

	frame := readFrame(ctx, t, bob)
	if frame.Event != proto.EventTypingUpdate {
		t.Fatalf("expected typing:update, got %q", frame.Event)
	}
	var data proto.TypingData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.UserID != "alice" || !data.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", data)
	}
}

func TestMalformedSendProducesErrorEvent(t *testing.T) {
	s := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := s.dial(ctx, t, "alice")

	if err := wsjson.Write(ctx, alice, proto.Inbound{Action: proto.ActionMessageSend, ChannelID: s.channel.ID}); err != nil {
		t.Fatalf("send: %v", err)
	}

	frame := readFrame(ctx, t, alice)
	if frame.Event != proto.EventError {
		t.Fatalf("expected error event, got %q", frame.Event)
	}
	var data proto.ErrorData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %q", data.Code)
	}
}

func TestSubscribeDeniedForUnknownChannel(t *testing.T) {
	s := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := s.dial(ctx, t, "alice")

	if err := wsjson.Write(ctx, alice, proto.Inbound{Action: proto.ActionSubscribe, ChannelID: "00000000-0000-0000-0000-000000000000"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	frame := readFrame(ctx, t, alice)
	if frame.Event != proto.EventError {
		t.Fatalf("expected error event, got %q", frame.Event)
	}
	var data proto.ErrorData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Code != core.ErrCodeAccessDenied {
		t.Fatalf("expected access_denied, got %q", data.Code)
	}
}

func TestUnknownActionIgnored(t *testing.T) {
	s := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := s.dial(ctx, t, "alice")

	if err := wsjson.Write(ctx, alice, proto.Inbound{Action: "presence:wave", ChannelID: s.channel.ID}); err != nil {
		t.Fatalf("send unknown action: %v", err)
	}
	expectSilence(ctx, t, alice)

	// The connection must survive: a normal flow still works.
	if err := wsjson.Write(ctx, alice, proto.Inbound{Action: proto.ActionSubscribe, ChannelID: s.channel.ID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := wsjson.Write(ctx, alice, proto.Inbound{Action: proto.ActionMessageSend, ChannelID: s.channel.ID, Text: "still alive"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	frame := readFrame(ctx, t, alice)
	if frame.Event != proto.EventMessageNew {
		t.Fatalf("expected message:new after unknown action, got %q", frame.Event)
	}
}
