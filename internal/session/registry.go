package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Default timeouts.
const (
	DefaultFlowTimeout  = 5 * time.Minute
	DefaultIdleTimeout  = 10 * time.Minute
	DefaultTombstoneTTL = time.Hour
)

// ErrSessionExpired is reported to the first turn that arrives after a
// session timed out.
var ErrSessionExpired = errors.New("session expired")

// Observer receives registry events.
type Observer interface {
	SessionsActive(n int)
	SessionsSwept(n int)
}

type entry struct {
	mu   sync.Mutex
	sess *Session
	// refs counts turns holding or waiting for mu; guarded by Registry.mu.
	refs int
}

// Registry is the concurrent store of sessions. Turns on distinct ids run in
// parallel; turns on the same id are serialized by a per-session lock. The
// expiry sweep skips any session a turn is holding or waiting for.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	tombstones map[string]time.Time

	flowTimeout  time.Duration
	idleTimeout  time.Duration
	tombstoneTTL time.Duration
	historyLimit int
	schedule     string
	now          func() time.Time
	logger       *slog.Logger
	observer     Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithFlowTimeout sets the idle timeout for sessions with an active flow.
func WithFlowTimeout(d time.Duration) Option {
	return func(r *Registry) { r.flowTimeout = d }
}

// WithIdleTimeout sets the idle timeout for sessions without an active flow.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithTombstoneTTL sets how long an expired id is remembered.
func WithTombstoneTTL(d time.Duration) Option {
	return func(r *Registry) { r.tombstoneTTL = d }
}

// WithHistoryLimit sets the number of turns retained per session.
func WithHistoryLimit(n int) Option {
	return func(r *Registry) { r.historyLimit = n }
}

// WithSweepSchedule sets the cron spec used by Start.
func WithSweepSchedule(spec string) Option {
	return func(r *Registry) { r.schedule = spec }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:      make(map[string]*entry),
		tombstones:   make(map[string]time.Time),
		flowTimeout:  DefaultFlowTimeout,
		idleTimeout:  DefaultIdleTimeout,
		tombstoneTTL: DefaultTombstoneTTL,
		historyLimit: DefaultHistoryLimit,
		schedule:     DefaultSweepSchedule,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HistoryLimit returns the configured history bound.
func (r *Registry) HistoryLimit() int {
	return r.historyLimit
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// acquire returns the locked entry for id, creating it if needed. expired is
// true when id was swept since its last turn.
func (r *Registry) acquire(id string, create bool) (e *entry, expired bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		if !create {
			r.mu.Unlock()
			return nil, false
		}
		if _, tomb := r.tombstones[id]; tomb {
			delete(r.tombstones, id)
			expired = true
		}
		e = &entry{sess: newSession(id, r.now())}
		r.entries[id] = e
		r.notifyActive()
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return e, expired
}

func (r *Registry) release(e *entry) {
	e.mu.Unlock()
	r.mu.Lock()
	e.refs--
	r.mu.Unlock()
}

// Do runs fn with exclusive access to the session id, creating it if it does
// not exist. expired tells fn the previous session timed out; the session
// passed in has already been reset to IDLE. The activity timestamp is
// refreshed after fn returns.
func (r *Registry) Do(id string, fn func(s *Session, expired bool) error) error {
	e, expired := r.acquire(id, true)
	defer r.release(e)

	if !expired && r.isExpired(e.sess, r.now()) {
		r.logger.Info("session expired on access", "session_id", id, "state", e.sess.State)
		e.sess.ResetToIdle()
		expired = true
	}

	err := fn(e.sess, expired)
	e.sess.LastActivityAt = r.now()
	return err
}

// GetOrCreate returns a copy of the session for id, creating it in IDLE.
func (r *Registry) GetOrCreate(id string) Session {
	e, _ := r.acquire(id, true)
	defer r.release(e)
	return e.sess.Snapshot()
}

// Get returns a copy of the session for id.
func (r *Registry) Get(id string) (Session, bool) {
	e, _ := r.acquire(id, false)
	if e == nil {
		return Session{}, false
	}
	defer r.release(e)
	return e.sess.Snapshot(), true
}

// Remove deletes the session for id. A turn already holding it finishes on
// the detached copy.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	delete(r.tombstones, id)
	if ok {
		r.notifyActive()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the live session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SweepExpired removes idle sessions and returns how many were removed.
// Sessions held or awaited by a turn are skipped.
func (r *Registry) SweepExpired() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.entries {
		// refs == 0 under r.mu means no turn can touch e.sess concurrently.
		if e.refs > 0 {
			continue
		}
		if r.isExpired(e.sess, now) {
			delete(r.entries, id)
			r.tombstones[id] = now
			n++
		}
	}
	for id, at := range r.tombstones {
		if now.Sub(at) > r.tombstoneTTL {
			delete(r.tombstones, id)
		}
	}

	if n > 0 {
		r.logger.Info("swept expired sessions", "count", n, "remaining", len(r.entries))
		r.notifyActive()
	}
	if r.observer != nil {
		r.observer.SessionsSwept(n)
	}
	return n
}

func (r *Registry) timeout(s *Session) time.Duration {
	if s.HasActiveFlow() {
		return r.flowTimeout
	}
	return r.idleTimeout
}

func (r *Registry) isExpired(s *Session, now time.Time) bool {
	t := r.timeout(s)
	return t > 0 && now.Sub(s.LastActivityAt) > t
}

// notifyActive must be called with r.mu held.
func (r *Registry) notifyActive() {
	if r.observer != nil {
		r.observer.SessionsActive(len(r.entries))
	}
}
