package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "key")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i)
	}

	allowed, err := rl.Allow(ctx, "key")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestDistributedRateLimiter_Remaining(t *testing.T) {
	client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}, "test")
	ctx := context.Background()

	remaining, err := rl.Remaining(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = rl.Allow(ctx, "key")
	require.NoError(t, err)

	remaining, err = rl.Remaining(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestDistributedRateLimiter_Reset(t *testing.T) {
	client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "test")
	ctx := context.Background()

	allowed, err := rl.Allow(ctx, "key")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = rl.Allow(ctx, "key")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, rl.Reset(ctx, "key"))
	allowed, err = rl.Allow(ctx, "key")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimitMiddleware_Anonymous(t *testing.T) {
	client := setupRedis(t)
	m := NewDistributedRateLimitMiddleware(client)
	m.anonymousLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, "ratelimit:anon")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Handler(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDistributedRateLimitMiddleware_FailsOpenOnRedisError(t *testing.T) {
	client := setupRedis(t)
	m := NewDistributedRateLimitMiddleware(client)
	client.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDistributedRateLimitMiddleware_HealthCheck(t *testing.T) {
	client := setupRedis(t)
	m := NewDistributedRateLimitMiddleware(client)
	assert.NoError(t, m.HealthCheck(context.Background()))
}
