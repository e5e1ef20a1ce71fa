package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/contextkeys"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("key"), "request %d should be allowed", i)
	}
	assert.False(t, rl.Allow("key"), "request over the limit should be denied")
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	})

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	})

	assert.Equal(t, 3, rl.Remaining("key"))
	rl.Allow("key")
	assert.Equal(t, 2, rl.Remaining("key"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Millisecond,
	})

	rl.Allow("stale")
	time.Sleep(5 * time.Millisecond)
	rl.Cleanup()

	rl.mu.RLock()
	_, exists := rl.buckets["stale"]
	rl.mu.RUnlock()
	assert.False(t, exists)
}

func TestNewRateLimiter_NilConfig(t *testing.T) {
	rl := NewRateLimiter(nil)
	require.NotNil(t, rl.config)
	assert.Equal(t, DefaultRateLimitConfig().RequestsPerWindow, rl.config.RequestsPerWindow)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", getClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", getClientIP(req))
}

func TestRateLimitMiddleware_AnonymousByIP(t *testing.T) {
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(PerUserRateLimitConfig()),
		serviceLimiter:   NewRateLimiter(PerServiceRateLimitConfig()),
		anonymousLimiter: NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}),
	}
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
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different IP still gets through
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_AuthenticatedKeyedByUser(t *testing.T) {
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}),
		serviceLimiter:   NewRateLimiter(PerServiceRateLimitConfig()),
		anonymousLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Handler(next)

	asUser := func(userID int64) *http.Request {
		req := httptest.NewRequest("GET", "/", nil)
		ctx := contextkeys.WithIdentity(req.Context(), &auth.Identity{UserID: userID})
		return req.WithContext(ctx)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser(1))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser(1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser(2))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_ServiceAccountsUseServiceLimiter(t *testing.T) {
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}),
		serviceLimiter:   NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}),
		anonymousLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Handler(next)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		ctx := contextkeys.WithIdentity(req.Context(), &auth.Identity{UserID: 7, IsService: true})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, rec.Code, "service request %d", i)
	}
}
