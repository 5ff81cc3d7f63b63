package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Envelope is one event crossing the instance boundary. TargetID
// addresses every live connection of one user; zero means broadcast
// to everyone except ExcludeID. Origin lets an instance skip the echo
// of its own publishes, since it already delivered locally.
type Envelope struct {
	Origin    string          `json:"origin"`
	TargetID  int             `json:"target_id"`
	ExcludeID int             `json:"exclude_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Bus carries envelopes between server instances so fan-out reaches
// users connected elsewhere.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}

// RedisBus rides a single redis pub/sub channel: one shared topic,
// every instance subscribed.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("bus: dropping malformed envelope: %v", err)
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// LoopbackBus is the single-instance bus: publishes go nowhere useful
// (the only subscriber is the publisher, which skips its own origin)
// but the delivery path stays identical to the redis deployment.
type LoopbackBus struct {
	mu   sync.Mutex
	subs []chan Envelope
}

func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{}
}

func (b *LoopbackBus) Publish(_ context.Context, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// Subscriber not draining; dropping is fine, the local
			// instance already delivered and persistence is the
			// recovery path for everything else.
		}
	}
	return nil
}

func (b *LoopbackBus) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	ch := make(chan Envelope, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, nil
}
