package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/internal/backplane"
	"github.com/chatgate/chatgate/internal/store"
)

// fakeMessageStore is an in-memory message store with a failure switch.
type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*store.Message
	fail     bool
	seq      int64
}

func (f *fakeMessageStore) CreateMessage(ctx context.Context, channelID, senderID, text, originPortal string) (*store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return nil, errors.New("store unavailable")
	}

	f.seq++
	msg := &store.Message{
		ID:           fmt.Sprintf("msg-%d", f.seq),
		ChannelID:    channelID,
		SenderID:     senderID,
		Text:         text,
		OriginPortal: originPortal,
		Seq:          f.seq,
		CreatedAt:    time.Now().UTC(),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeMessageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeMessageStore) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

type authorizerFunc func(ctx context.Context, identity Identity, channelID string) (bool, error)

func (f authorizerFunc) CanJoin(ctx context.Context, identity Identity, channelID string) (bool, error) {
	return f(ctx, identity, channelID)
}

var allowAll = authorizerFunc(func(context.Context, Identity, string) (bool, error) {
	return true, nil
})

// testEnv shares one registry, broadcaster, and store across the
// gateways of a test, mirroring the process-wide wiring.
type testEnv struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       *fakeMessageStore
	authz       Authorizer
	queueLimit  int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	env := &testEnv{
		registry:   NewRegistry(),
		store:      &fakeMessageStore{},
		authz:      allowAll,
		queueLimit: 16,
	}
	env.broadcaster = NewBroadcaster(env.registry, backplane.NewLocal(), &logger)
	return env
}

func (e *testEnv) newGateway(t *testing.T, userID string) *Gateway {
	t.Helper()

	logger := zerolog.Nop()
	sess := NewSession("sess-"+userID, Identity{UserID: userID, Portal: "employee", Role: "member"}, e.queueLimit)
	sess.Activate()
	return NewGateway(sess, e.registry, e.broadcaster, e.store, e.authz, time.Second, &logger)
}

func mustEvent(t *testing.T, s *Session, kind EventKind) *Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		ev, err := s.NextEvent(ctx)
		if err != nil {
			t.Fatalf("expected event kind %v, got error: %v", kind, err)
		}
		if ev.Kind == kind {
			return ev
		}
	}
}

func mustQueueEmpty(t *testing.T, s *Session) {
	t.Helper()

	if n := s.QueueLen(); n != 0 {
		t.Fatalf("expected empty outbound queue, got %d pending events", n)
	}
}
