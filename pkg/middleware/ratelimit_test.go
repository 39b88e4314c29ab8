package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperstack/paperstack/pkg/identity"
)

// Helper function to set the acting identity on a request for testing
func setIdentityForTest(r *http.Request, id identity.Identity) *http.Request {
	return r.WithContext(identity.Push(r.Context(), id))
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	})

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("svc-billing") {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed, "window plus burst")

	// Tokens refill after the window passes.
	time.Sleep(1100 * time.Millisecond)
	assert.True(t, limiter.Allow("svc-billing"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})

	assert.True(t, limiter.Allow("alice"))
	assert.False(t, limiter.Allow("alice"))
	assert.True(t, limiter.Allow("bob"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         2,
	})

	// Unknown keys report a full bucket.
	assert.Equal(t, 12, limiter.Remaining("alice"))

	limiter.Allow("alice")
	limiter.Allow("alice")
	assert.Equal(t, 10, limiter.Remaining("alice"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    10 * time.Millisecond,
		BurstSize:         0,
	})

	limiter.Allow("stale")
	time.Sleep(50 * time.Millisecond)
	limiter.Allow("fresh")

	limiter.Cleanup()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.NotContains(t, limiter.buckets, "stale")
	assert.Contains(t, limiter.buckets, "fresh")
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    10 * time.Millisecond,
		BurstSize:         0,
	})
	limiter.Allow("stale")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter.StartCleanup(ctx)

	require.Eventually(t, func() bool {
		limiter.mu.RLock()
		defer limiter.mu.RUnlock()
		return len(limiter.buckets) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNewRateLimiter_NilConfig(t *testing.T) {
	limiter := NewRateLimiter(nil)
	require.NotNil(t, limiter.config)
	assert.Equal(t, DefaultRateLimitConfig().RequestsPerWindow, limiter.config.RequestsPerWindow)
}

func TestRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 100, DefaultRateLimitConfig().RequestsPerWindow)
	assert.Equal(t, 1000, PerUserRateLimitConfig().RequestsPerWindow)
	assert.Equal(t, 5000, PerServiceRateLimitConfig().RequestsPerWindow)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:4312",
			want:       "192.0.2.10:4312",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.5:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for single entry",
			remoteAddr: "10.0.0.5:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for hop chain keeps first entry",
			remoteAddr: "10.0.0.5:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 198.51.100.2, 10.0.0.5"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded-for wins over real-ip",
			remoteAddr: "10.0.0.5:80",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.7",
				"X-Real-IP":       "198.51.100.2",
			},
			want: "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				limiter.Allow("shared")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 0, limiter.Remaining("shared"))
}

func newTestRateLimitMiddleware(anonymousPerWindow int) *RateLimitMiddleware {
	m := NewRateLimitMiddleware()
	m.anonymousLimiter = NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: anonymousPerWindow,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})
	return m
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_Anonymous(t *testing.T) {
	m := newTestRateLimitMiddleware(2)
	handler := m.Handler(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.RemoteAddr = "192.0.2.10:4312"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.RemoteAddr = "192.0.2.10:4312"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitMiddleware_DifferentIPsIndependent(t *testing.T) {
	m := newTestRateLimitMiddleware(1)
	handler := m.Handler(okHandler())

	for _, addr := range []string{"192.0.2.10:1", "192.0.2.11:1"} {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "first request from %s", addr)
	}
}

func TestRateLimitMiddleware_AuthenticatedUsesUserLimiter(t *testing.T) {
	m := NewRateLimitMiddleware()
	m.userLimiter = NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})
	handler := m.Handler(okHandler())

	userRef := identity.UserRef{UUID: uuid.New(), SubjectID: "alice"}
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req = setIdentityForTest(req, identity.NewBasicIdentity(userRef))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, http.StatusTooManyRequests, send().Code)
}

func TestRateLimitMiddleware_ProcessingUsesServiceLimiter(t *testing.T) {
	m := NewRateLimitMiddleware()
	m.serviceLimiter = NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})
	handler := m.Handler(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/internal/sweep", nil)
		req = setIdentityForTest(req, identity.ProcessingIdentity())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, http.StatusTooManyRequests, send().Code)
}

func TestRateLimitMiddleware_ForwardedClientsSeparated(t *testing.T) {
	m := newTestRateLimitMiddleware(1)
	handler := m.Handler(okHandler())

	send := func(xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		req.RemoteAddr = "10.0.0.5:80"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7").Code)
	// Same proxy, different client: its own bucket.
	assert.Equal(t, http.StatusOK, send("198.51.100.2, 10.0.0.5").Code)
}
