package backplane

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// No server listens on the address; the client retries in the
// background, which is enough to exercise lifecycle edges.
func newUnreachableRedis() *Redis {
	logger := zerolog.Nop()
	return NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), &logger)
}

func TestRedisCloseWithoutRun(t *testing.T) {
	bp := newUnreachableRedis()

	done := make(chan struct{})
	go func() {
		if err := bp.Close(); err != nil {
			t.Errorf("first close: %v", err)
		}
		if err := bp.Close(); err != nil {
			t.Errorf("second close: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked although Run was never started")
	}
}

func TestRedisCloseAfterRun(t *testing.T) {
	bp := newUnreachableRedis()
	bp.Subscribe(func(string, []byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	go bp.Run(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		bp.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after Run exited")
	}
}
