package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	limiter := NewMemoryLimiter(3, time.Minute)
	defer limiter.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "test-key")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "test-key")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("4th request should be denied")
	}

	allowed, _ = limiter.Allow(ctx, "other-key")
	if !allowed {
		t.Error("different key should be allowed")
	}
}

func TestMemoryLimiter_WindowExpiry(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatal("second request should be denied")
	}
	if got := limiter.ResetTime(ctx, "k"); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("ResetTime() = %v, want %v", got, now.Add(time.Minute))
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Error("request in a new window should be allowed")
	}
}

func TestMemoryLimiter_AllowN(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	defer limiter.Close()

	ctx := context.Background()

	if ok, _ := limiter.AllowN(ctx, "k", 3); !ok {
		t.Error("AllowN(3) should be allowed")
	}
	if ok, _ := limiter.AllowN(ctx, "k", 3); ok {
		t.Error("AllowN(3) over the limit should be denied")
	}
	if ok, _ := limiter.AllowN(ctx, "k", 2); !ok {
		t.Error("AllowN(2) within the limit should be allowed")
	}
	if got := limiter.Remaining("k"); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestMemoryLimiter_Reset(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()

	ctx := context.Background()
	limiter.Allow(ctx, "k")
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatal("expected limit to be reached")
	}

	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := limiter.Remaining("k"); got != 1 {
		t.Errorf("Remaining() after reset = %d, want 1", got)
	}
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Error("request after reset should be allowed")
	}
}

func TestMemoryLimiter_CloseTwice(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	if err := limiter.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := limiter.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	defer limiter.Close()

	handler := Middleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
	if !strings.Contains(rec.Body.String(), `"code":"RATE_LIMITED"`) {
		t.Errorf("body = %s, want RATE_LIMITED code", rec.Body.String())
	}
}

func TestMiddleware_SkipFunc(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()

	cfg := DefaultConfig()
	cfg.SkipFunc = func(r *http.Request) bool {
		return r.URL.Path == "/health"
	}

	handler := Middleware(limiter, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("health request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

type failingLimiter struct{ MemoryLimiter }

func (*failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestMiddleware_LimiterErrorFailsOpen(t *testing.T) {
	handler := Middleware(&failingLimiter{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{
			name:       "x-forwarded-for",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2"},
			want:       "203.0.113.1",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.5"},
			want:       "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteIP_IgnoresProxyHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	req.Header.Set("X-Real-IP", "203.0.113.5")

	if got := RemoteIP(req); got != "192.168.1.1" {
		t.Errorf("RemoteIP() = %q, want %q", got, "192.168.1.1")
	}
}

func TestMiddleware_DefaultKeyIgnoresForwardedFor(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()

	handler := Middleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want [200 429]", codes)
	}
}

func newRedisLimiter(t *testing.T, rate int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLimiter(&RedisConfig{Client: client, Rate: rate, Window: window}), mr
}

func TestRedisLimiter_Allow(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "login:bob@x.com")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "login:bob@x.com")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("3rd request should be denied")
	}

	if !mr.Exists("codevault:ratelimit:login:bob@x.com") {
		t.Error("expected the rate limit key under the default prefix")
	}

	remaining, err := limiter.Remaining(ctx, "login:bob@x.com")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 0 {
		t.Errorf("Remaining() = %d, want 0", remaining)
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 1, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatal("first request should be allowed")
	}
	if got := limiter.ResetTime(ctx, "k"); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("ResetTime() = %v, want %v", got, now.Add(time.Minute))
	}

	now = now.Add(30 * time.Second)
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatal("request within the window should be denied")
	}

	now = now.Add(31 * time.Second)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Error("request after the window slid should be allowed")
	}
}

func TestRedisLimiter_Reset(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	limiter.Allow(ctx, "k")
	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Error("request after reset should be allowed")
	}
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "k"); err == nil {
		t.Error("Allow() should fail when redis is down")
	}
}
