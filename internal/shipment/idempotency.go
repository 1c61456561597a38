// internal/shipment/idempotency.go
package shipment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which shipment a keyed, non-idempotent call
// already completed for, so a repeat of the same key is answered without a
// second write.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (shipmentID string, found bool, err error)
	Remember(ctx context.Context, key, shipmentID string) error
}

type memoryEntry struct {
	shipmentID string
	expires    time.Time
}

type MemoryIdempotency struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryIdempotency) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.shipmentID, true, nil
}

func (m *MemoryIdempotency) Remember(_ context.Context, key, shipmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{shipmentID: shipmentID, expires: m.now().Add(m.ttl)}
	return nil
}

// RedisIdempotency shares keys between server instances.
type RedisIdempotency struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, prefix: "shiptrack:idem:", ttl: ttl}
}

func (r *RedisIdempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisIdempotency) Remember(ctx context.Context, key, shipmentID string) error {
	return r.client.Set(ctx, r.prefix+key, shipmentID, r.ttl).Err()
}
