package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWindowSemantics(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	config := RateLimitConfig{MaxRequests: 3, Window: time.Hour}

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("1.2.3.4", config)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, _ := rl.Allow("1.2.3.4", config)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	// Other keys are unaffected.
	allowed, _, _ = rl.Allow("5.6.7.8", config)
	assert.True(t, allowed)
}

func TestAllowResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	config := RateLimitConfig{MaxRequests: 1, Window: 10 * time.Millisecond}
	allowed, _, _ := rl.Allow("k", config)
	require.True(t, allowed)
	allowed, _, _ = rl.Allow("k", config)
	require.False(t, allowed)

	time.Sleep(20 * time.Millisecond)
	allowed, _, _ = rl.Allow("k", config)
	assert.True(t, allowed)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	assert.Equal(t, "10.0.0.1", GetClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", GetClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", GetClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", GetClientIP(req))
}

func TestRateLimitHandlerHeadersAndRejection(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	config := RateLimitConfig{MaxRequests: 1, Window: time.Hour}
	handler := rl.RateLimitHandler(config, func(*http.Request) string { return "fixed" },
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}
