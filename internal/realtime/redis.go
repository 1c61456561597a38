// internal/realtime/redis.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge links the buses of several server instances through one redis
// pub/sub channel. Events carry the publishing bus's origin so an instance
// never re-delivers its own events.
type RedisBridge struct {
	client  *redis.Client
	channel string
	bus     *Bus
	log     *zap.Logger
	ready   chan struct{}
}

func NewRedisBridge(client *redis.Client, channel string, bus *Bus, log *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		bus:     bus,
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once Run holds a confirmed subscription.
func (r *RedisBridge) Ready() <-chan struct{} { return r.ready }

func (r *RedisBridge) Forward(ctx context.Context, ev Event) error {
	if ev.Origin != r.bus.Origin() {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run relays remote events into the local bus until ctx is cancelled.
func (r *RedisBridge) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.log.Info("realtime redis bridge subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("dropping malformed realtime payload", zap.Error(err))
				continue
			}
			if ev.Origin == r.bus.Origin() {
				continue
			}
			r.bus.Deliver(ctx, ev)
		}
	}
}
