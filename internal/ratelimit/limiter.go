package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// recommended wait before retrying; zero when allowed
	RetryAfter time.Duration
}

// Limiter decides per client key. Implementations: the in-process Store
// below and the Redis fixed window limiter in internal/redis.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Store keeps one token bucket per key. A bucket holds limit tokens and refills
// at limit/window, so a burst of limit requests is followed by a steady trickle.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	window       time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

func NewStore(limit int, window time.Duration, opts ...StoreOption) *Store {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(float64(limit) / window.Seconds()),
		burst:        limit,
		window:       window,
		idleTTL:      window,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Allow(_ context.Context, key string) (Decision, error) {
	lim := s.get(key)
	if lim.Allow() {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: s.retryAfter()}, nil
}

// retryAfter is the time one token takes to refill, rounded up to whole seconds.
func (s *Store) retryAfter() time.Duration {
	d := (s.window/time.Duration(s.burst) + time.Second - 1).Truncate(time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

func (s *Store) get(key string) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops keys idle for longer than the idle TTL.
func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
