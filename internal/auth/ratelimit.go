package auth

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimitConfig returns the default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// ParseRateLimit reads "rate:burst" (e.g. "10:20" is 10 req/s with a burst
// of 20). An empty string yields the defaults.
func ParseRateLimit(s string) (RateLimitConfig, error) {
	cfg := DefaultRateLimitConfig()
	s = strings.TrimSpace(s)
	if s == "" {
		return cfg, nil
	}

	parts := strings.SplitN(s, ":", 2)
	rps, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || rps <= 0 {
		return cfg, fmt.Errorf("invalid rate %q", parts[0])
	}
	cfg.RequestsPerSecond = rps
	if len(parts) > 1 {
		burst, err := strconv.Atoi(parts[1])
		if err != nil || burst <= 0 {
			return cfg, fmt.Errorf("invalid burst %q", parts[1])
		}
		cfg.Burst = burst
	}
	return cfg, nil
}

// RateLimiter keeps one rate.Limiter per client and blocks clients that
// keep failing authentication.
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimitConfig
	clients map[string]*client
	now     func() time.Time

	authMu       sync.Mutex
	authFailures map[string]*authBucket
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type authBucket struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
}

const (
	authMaxFailures   = 10
	authWindowDur     = 1 * time.Minute
	authBlockDur      = 5 * time.Minute
	authEvictInterval = 10 * time.Minute
	clientIdleEvict   = 10 * time.Minute
	maxTrackedClients = 1000
)

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithLimiterClock sets the clock used for token refills and blocks.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		config:       config,
		clients:      make(map[string]*client),
		authFailures: make(map[string]*authBucket),
		now:          time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

// Allow checks if a request from the given key is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.evictIdleClients(now)
		}
		c = &client{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Tracked reports how many clients currently hold a limiter.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) evictIdleClients(now time.Time) {
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > clientIdleEvict {
			delete(rl.clients, k)
		}
	}
}

// IsAuthBlocked checks if an IP is blocked due to too many auth failures.
func (rl *RateLimiter) IsAuthBlocked(ip string) bool {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()

	b, ok := rl.authFailures[ip]
	if !ok {
		return false
	}
	if rl.now().Before(b.blockedUntil) {
		return true
	}
	if !b.blockedUntil.IsZero() {
		delete(rl.authFailures, ip)
	}
	return false
}

// AuthBlockRetryAfter returns the number of seconds until the block expires.
func (rl *RateLimiter) AuthBlockRetryAfter(ip string) int {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()

	b, ok := rl.authFailures[ip]
	if !ok {
		return 0
	}
	remaining := b.blockedUntil.Sub(rl.now()).Seconds()
	if remaining <= 0 {
		return 0
	}
	return int(remaining) + 1
}

// AuthFailure records a failed authentication attempt from an IP and
// reports whether the IP is now blocked.
func (rl *RateLimiter) AuthFailure(ip string) bool {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()

	now := rl.now()
	b, ok := rl.authFailures[ip]
	if !ok {
		b = &authBucket{windowStart: now}
		rl.authFailures[ip] = b
	}
	if now.Sub(b.windowStart) > authWindowDur {
		b.failures = 0
		b.windowStart = now
	}

	b.failures++
	if b.failures >= authMaxFailures {
		b.blockedUntil = now.Add(authBlockDur)
		return true
	}

	if len(rl.authFailures) > maxTrackedClients {
		rl.evictStaleAuthEntries(now)
	}
	return false
}

// AuthSuccess clears auth failure tracking for an IP.
func (rl *RateLimiter) AuthSuccess(ip string) {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()
	delete(rl.authFailures, ip)
}

func (rl *RateLimiter) evictStaleAuthEntries(now time.Time) {
	for ip, b := range rl.authFailures {
		if !b.blockedUntil.IsZero() && now.After(b.blockedUntil) {
			delete(rl.authFailures, ip)
		} else if now.Sub(b.windowStart) > authEvictInterval {
			delete(rl.authFailures, ip)
		}
	}
}

// Middleware returns HTTP middleware that applies rate limiting. keyFunc
// picks the client limiter; an empty key is not limited.
func (rl *RateLimiter) Middleware(keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !rl.Allow(key) {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(1.0/rl.config.RequestsPerSecond)))
				writeAuthError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIPKeyFunc extracts the client IP from the request, preferring the
// first X-Forwarded-For hop.
func ClientIPKeyFunc(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.SplitN(forwarded, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
