// Package ratelimit limits how often a key (client IP, login identifier)
// may act within a time window.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codevault/codevault/logging"
)

// ErrRateLimited is returned by callers that translate a denied Allow into
// an error.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter defines the interface for rate limiters.
type Limiter interface {
	// Allow checks if a request is allowed for the given key.
	// Returns true if allowed, false if rate limited.
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN checks if n requests are allowed for the given key.
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Reset resets the rate limit for the given key.
	Reset(ctx context.Context, key string) error

	// Close releases any resources held by the limiter.
	Close() error
}

// Resetter is implemented by limiters that know when a key's window ends.
// The middleware uses it for the Retry-After header.
type Resetter interface {
	ResetTime(ctx context.Context, key string) time.Time
}

// Config holds HTTP middleware configuration.
type Config struct {
	// KeyFunc extracts the rate limit key from an HTTP request.
	// Defaults to RemoteIP.
	KeyFunc func(r *http.Request) string

	// OnLimited is called when a request is rate limited.
	// Defaults to a JSON 429 response.
	OnLimited func(w http.ResponseWriter, r *http.Request)

	// SkipFunc determines if a request should skip rate limiting.
	// Return true to skip.
	SkipFunc func(r *http.Request) bool

	// Logger receives limiter backend errors. Defaults to a no-op logger.
	Logger logging.Logger
}

// DefaultConfig returns a default middleware configuration.
func DefaultConfig() *Config {
	return &Config{
		KeyFunc:   RemoteIP,
		OnLimited: writeLimited,
	}
}

func writeLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"detail":"Too many requests","code":"RATE_LIMITED"}`))
}

// RemoteIP returns the host part of the request's RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GetClientIP extracts the client IP from an HTTP request, preferring
// X-Forwarded-For and X-Real-IP over RemoteAddr. Clients can set those
// headers freely, so use it only behind a proxy that overwrites them.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return RemoteIP(r)
}

// entry represents a rate limit entry for a key.
type entry struct {
	count    int
	windowAt time.Time
}

// MemoryLimiter is an in-memory fixed window rate limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    int
	window  time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates a new in-memory rate limiter allowing rate
// requests per window.
func NewMemoryLimiter(rate int, window time.Duration) *MemoryLimiter {
	ml := &MemoryLimiter{
		entries: make(map[string]*entry),
		rate:    rate,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go ml.cleanup()

	return ml
}

// Allow checks if a request is allowed for the given key.
func (m *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return m.AllowN(ctx, key, 1)
}

// AllowN checks if n requests are allowed for the given key.
func (m *MemoryLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, exists := m.entries[key]

	if !exists || !now.Before(e.windowAt) {
		m.entries[key] = &entry{
			count:    n,
			windowAt: now.Add(m.window),
		}
		return n <= m.rate, nil
	}

	if e.count+n > m.rate {
		return false, nil
	}

	e.count += n
	return true, nil
}

// Reset resets the rate limit for the given key.
func (m *MemoryLimiter) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

// Remaining returns the number of requests left in the key's window.
func (m *MemoryLimiter) Remaining(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[key]
	if !exists || !m.now().Before(e.windowAt) {
		return m.rate
	}
	if remaining := m.rate - e.count; remaining > 0 {
		return remaining
	}
	return 0
}

// ResetTime returns when the key's current window ends.
func (m *MemoryLimiter) ResetTime(ctx context.Context, key string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, exists := m.entries[key]; exists {
		return e.windowAt
	}
	return m.now().Add(m.window)
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *MemoryLimiter) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if !now.Before(e.windowAt) {
			delete(m.entries, key)
		}
	}
}

// Middleware creates an HTTP middleware that applies rate limiting.
// Limiter errors are logged and the request is let through.
func Middleware(limiter Limiter, cfg *Config) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = RemoteIP
	}
	onLimited := cfg.OnLimited
	if onLimited == nil {
		onLimited = writeLimited
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.SkipFunc != nil && cfg.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := keyFunc(r)
			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				log.Error(ctx, "rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				if rs, ok := limiter.(Resetter); ok {
					retryAfter := int(time.Until(rs.ResetTime(ctx, key)).Seconds())
					if retryAfter < 1 {
						retryAfter = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				}
				onLimited(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
