// Package ratelimit provides per-client request rate limiting.
package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zimlet-labs/nextcloud-gateway/internal/api"
	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Config defines rate limiting parameters.
type Config struct {
	// RequestsPerWindow is the maximum requests allowed per window.
	RequestsPerWindow int64

	// Window is the time window for rate limiting.
	Window time.Duration
}

// DefaultConfig returns sensible rate limiting defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerWindow: 100,
		Window:            time.Minute,
	}
}

type window struct {
	count   int64
	resetAt time.Time
}

// Limiter is an in-process fixed-window rate limiter keyed by client.
type Limiter struct {
	config *Config

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// New creates a new rate limiter.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Limiter{
		config:  cfg,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Result contains the rate limit check result.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Allow counts a request for key and reports whether it is within the
// limit.
func (l *Limiter) Allow(key string) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.config.Window)}
		l.windows[key] = w
	}
	w.count++

	remaining := l.config.RequestsPerWindow - w.count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   w.count <= l.config.RequestsPerWindow,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}
}

// Reset clears the rate limit for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// KeyFromRequest picks the rate limit key for a request: the
// authenticated account when present, otherwise the client IP.
// clientIP resolves the peer address honoring trusted proxies; a nil
// resolver falls back to the raw remote address.
func KeyFromRequest(r *http.Request, clientIP func(*http.Request) string) string {
	if sess, ok := appctx.SessionFromContext(r.Context()); ok {
		return "acct:" + sess.AccountID
	}

	if clientIP != nil {
		if ip := clientIP(r); ip != "" {
			return ip
		}
	}

	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

// Middleware returns an HTTP middleware that applies rate limiting.
// It must be mounted after authentication so account keys take effect.
func (l *Limiter) Middleware(clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := l.Allow(KeyFromRequest(r, clientIP))

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(result.ResetAt).Seconds())))
				api.WriteTooManyRequests(w, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
