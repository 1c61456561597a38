// internal/realtime/bus.go
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/metrics"
)

type Handler func(ctx context.Context, ev Event)

// Forwarder receives every locally published event after local delivery,
// e.g. to relay it to other server instances or an external log.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}

// Bus is the in-process pub/sub used by every realtime consumer. Delivery is
// synchronous and in publish order per publisher; handlers must not block.
type Bus struct {
	origin string
	log    *zap.Logger

	mu         sync.RWMutex
	subs       map[string]map[uint64]Handler
	nextID     uint64
	forwarders []Forwarder
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		origin: uuid.NewString(),
		log:    log,
		subs:   make(map[string]map[uint64]Handler),
	}
}

// Origin identifies this process on shared transports.
func (b *Bus) Origin() string { return b.origin }

func (b *Bus) AddForwarder(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarders = append(b.forwarders, f)
}

type Subscription struct {
	bus   *Bus
	topic string
	id    uint64
	once  sync.Once
}

func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if hs, ok := s.bus.subs[s.topic]; ok {
			delete(hs, s.id)
			if len(hs) == 0 {
				delete(s.bus.subs, s.topic)
			}
		}
	})
}

func (b *Bus) Subscribe(topic string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][b.nextID] = h
	return &Subscription{bus: b, topic: topic, id: b.nextID}
}

// Subscribers returns the number of handlers on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Publish delivers ev to local subscribers, then hands it to every forwarder.
// Forwarder errors are joined and returned; local delivery has already happened.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.Origin == "" {
		ev.Origin = b.origin
	}
	b.deliver(ctx, ev)
	metrics.RealtimeEventsTotal.WithLabelValues(string(ev.Type), "local").Inc()

	b.mu.RLock()
	fwd := append([]Forwarder(nil), b.forwarders...)
	b.mu.RUnlock()

	var errs []error
	for _, f := range fwd {
		if err := f.Forward(ctx, ev); err != nil {
			b.log.Warn("realtime forward failed", zap.String("topic", ev.Topic), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deliver hands an event that arrived from another instance to local
// subscribers only.
func (b *Bus) Deliver(ctx context.Context, ev Event) {
	b.deliver(ctx, ev)
	metrics.RealtimeEventsTotal.WithLabelValues(string(ev.Type), "remote").Inc()
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.subs[ev.Topic]))
	for _, h := range b.subs[ev.Topic] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ctx, ev)
	}
}
