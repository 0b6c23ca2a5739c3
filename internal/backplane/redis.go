package backplane

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "chatgate:chan:"

// Redis is the cluster backplane. Every server process publishes to and
// subscribes from the same Redis pub/sub channels, so a message sent on
// one process reaches subscribers connected to any other.
type Redis struct {
	client *redis.Client
	log    *zerolog.Logger

	mu      sync.RWMutex
	handler Handler
	running bool

	pubsub    *redis.PubSub
	closeOnce sync.Once
	done      chan struct{}
}

// NewRedis constructs a Redis backplane on an established client. The
// pattern subscription is opened here so Run and Close never race over
// its creation.
func NewRedis(client *redis.Client, logger *zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    logger,
		pubsub: client.PSubscribe(context.Background(), channelPrefix+"*"),
		done:   make(chan struct{}),
	}
}

// Publish sends the payload to every process subscribed to the channel.
func (r *Redis) Publish(ctx context.Context, channelID string, payload []byte) error {
	return r.client.Publish(ctx, channelPrefix+channelID, payload).Err()
}

// Subscribe registers the delivery handler.
func (r *Redis) Subscribe(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Run consumes the pattern subscription until the context is cancelled
// or the backplane is closed. It must be started in its own goroutine
// after Subscribe.
func (r *Redis) Run(ctx context.Context) {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	defer close(r.done)

	ch := r.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Redis) dispatch(msg *redis.Message) {
	channelID := strings.TrimPrefix(msg.Channel, channelPrefix)

	r.mu.RLock()
	h := r.handler
	r.mu.RUnlock()

	if h == nil {
		r.log.Warn().Str("channel_id", channelID).Msg("backplane message with no handler")
		return
	}
	h(channelID, []byte(msg.Payload))
}

// Close tears down the subscription and, if Run was started, waits for
// it to return. Safe to call more than once.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.pubsub.Close()
	})

	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if running {
		<-r.done
	}
	return err
}
