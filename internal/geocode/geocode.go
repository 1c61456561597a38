// internal/geocode/geocode.go
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultEndpoint = "https://nominatim.openstreetmap.org/reverse"

// Fallback is the label used whenever no address can be resolved.
func Fallback(lat, lng float64) string {
	return fmt.Sprintf("Location at %.4f, %.4f", lat, lng)
}

// Cache stores resolved labels keyed by rounded coordinates.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, label string)
}

// Geocoder turns coordinates into a display label. Reverse never fails: the
// caller always gets either the provider's display name or the fallback.
type Geocoder struct {
	endpoint  string
	userAgent string
	client    *http.Client
	cache     Cache
	log       *zap.Logger
}

func New(endpoint, userAgent string, timeout time.Duration, cache Cache, log *zap.Logger) *Geocoder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Geocoder{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		cache:     cache,
		log:       log,
	}
}

func (g *Geocoder) Reverse(ctx context.Context, lat, lng float64) string {
	key := cacheKey(lat, lng)
	if g.cache != nil {
		if label, ok := g.cache.Get(ctx, key); ok {
			return label
		}
	}
	label, err := g.lookup(ctx, lat, lng)
	if err != nil {
		g.log.Debug("reverse geocode failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		return Fallback(lat, lng)
	}
	if g.cache != nil {
		g.cache.Set(ctx, key, label)
	}
	return label
}

type nominatimReply struct {
	DisplayName string `json:"display_name"`
}

func (g *Geocoder) lookup(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim: status %d", resp.StatusCode)
	}
	var reply nominatimReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("nominatim: decode: %w", err)
	}
	label := strings.TrimSpace(reply.DisplayName)
	if label == "" {
		return "", fmt.Errorf("nominatim: empty display_name")
	}
	return label, nil
}

// cacheKey rounds to about 11 m so nearby pings share an entry.
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// RedisCache keeps labels in Redis with a TTL. Errors are treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

const redisPrefix = "shiptrack:geocode:"

func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, redisPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("geocode cache read", zap.Error(err))
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, label string) {
	if err := c.client.Set(ctx, redisPrefix+key, label, c.ttl).Err(); err != nil {
		c.log.Debug("geocode cache write", zap.Error(err))
	}
}
