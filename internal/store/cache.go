package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/telemetry"
)

// DefaultIdentifierCacheTTL bounds how long a lookup answer is reused.
const DefaultIdentifierCacheTTL = time.Minute

// maxCacheEntries triggers a sweep of expired entries on insert.
const maxCacheEntries = 4096

type cacheEntry struct {
	ok      bool
	expires time.Time
}

// CachedValidator memoizes identifier lookups and collapses concurrent
// lookups of the same value into one backend call. Errors are not cached.
type CachedValidator struct {
	next    extract.IdentifierValidator
	ttl     time.Duration
	now     func() time.Time
	metrics *telemetry.Metrics

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// CacheOption configures a CachedValidator.
type CacheOption func(*CachedValidator)

// WithCacheClock sets the clock used for expiry.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachedValidator) { c.now = now }
}

// WithCacheMetrics records hits and misses.
func WithCacheMetrics(m *telemetry.Metrics) CacheOption {
	return func(c *CachedValidator) { c.metrics = m }
}

// NewCachedValidator wraps next. A ttl of zero or less uses
// DefaultIdentifierCacheTTL.
func NewCachedValidator(next extract.IdentifierValidator, ttl time.Duration, opts ...CacheOption) *CachedValidator {
	if ttl <= 0 {
		ttl = DefaultIdentifierCacheTTL
	}
	c := &CachedValidator{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ValidateIdentifier answers from the cache or asks the wrapped validator.
func (c *CachedValidator) ValidateIdentifier(ctx context.Context, kind, value string) (bool, error) {
	key := kind + "\x00" + value

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		if c.now().Before(e.expires) {
			c.mu.Unlock()
			c.metrics.RecordIdentifierLookup("hit")
			return e.ok, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		found, err := c.next.ValidateIdentifier(ctx, kind, value)
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		now := c.now()
		if len(c.entries) >= maxCacheEntries {
			c.sweep(now)
		}
		c.entries[key] = cacheEntry{ok: found, expires: now.Add(c.ttl)}
		c.mu.Unlock()
		return found, nil
	})
	switch {
	case err != nil:
		c.metrics.RecordIdentifierLookup("error")
		return false, err
	case shared:
		c.metrics.RecordIdentifierLookup("shared")
	default:
		c.metrics.RecordIdentifierLookup("miss")
	}
	return v.(bool), nil
}

// sweep drops expired entries. c.mu must be held.
func (c *CachedValidator) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// Len reports how many answers are cached, expired ones included until
// they are read or swept.
func (c *CachedValidator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops every cached answer.
func (c *CachedValidator) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
