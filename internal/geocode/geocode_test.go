package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReverseUsesDisplayName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "5.6037", r.URL.Query().Get("lat"))
		assert.Equal(t, "-0.187", r.URL.Query().Get("lon"))
		assert.Equal(t, "shiptrack-test", r.UserAgent())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"Independence Avenue, Accra, Ghana"}`))
	}))
	defer srv.Close()

	g := New(srv.URL, "shiptrack-test", time.Second, nil, zap.NewNop())
	assert.Equal(t, "Independence Avenue, Accra, Ghana", g.Reverse(context.Background(), 5.6037, -0.187))
}

func TestReverseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := New(srv.URL, "", time.Second, nil, zap.NewNop())
	assert.Equal(t, "Location at 6.6885, -1.6244", g.Reverse(context.Background(), 6.68848, -1.62443))

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer empty.Close()
	g = New(empty.URL, "", time.Second, nil, zap.NewNop())
	assert.Equal(t, Fallback(1, 2), g.Reverse(context.Background(), 1, 2))

	g = New("http://127.0.0.1:1", "", 200*time.Millisecond, nil, zap.NewNop())
	assert.Equal(t, Fallback(1, 2), g.Reverse(context.Background(), 1, 2))
}

func TestReverseCachesInRedis(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"display_name":"Kejetia Market, Kumasi"}`))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Hour, zap.NewNop())
	g := New(srv.URL, "", time.Second, cache, zap.NewNop())
	ctx := context.Background()

	require.Equal(t, "Kejetia Market, Kumasi", g.Reverse(ctx, 6.69581, -1.62131))
	require.Equal(t, "Kejetia Market, Kumasi", g.Reverse(ctx, 6.69582, -1.62132))
	assert.Equal(t, int32(1), hits.Load())

	mr.FastForward(2 * time.Hour)
	g.Reverse(ctx, 6.69581, -1.62131)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFailuresAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Hour, zap.NewNop())

	g := New("http://127.0.0.1:1", "", 200*time.Millisecond, cache, zap.NewNop())
	g.Reverse(context.Background(), 5.55, -0.2)

	_, ok := cache.Get(context.Background(), cacheKey(5.55, -0.2))
	assert.False(t, ok)
}
