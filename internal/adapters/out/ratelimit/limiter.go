// Package ratelimit throttles API callers with per-key token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"golang.org/x/time/rate"

	"github.com/bnema/catalogd/internal/boundaries/out"
)

// Ensure KeyedLimiter implements out.RateLimiter.
var _ out.RateLimiter = (*KeyedLimiter)(nil)

// DefaultIdleTTL is how long an unused bucket is kept before Sweep drops it.
const DefaultIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter gives every key its own token bucket. Buckets that stay idle
// longer than the TTL are evicted by Sweep so the map does not grow with
// every client address ever seen.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	log     zerowrap.Logger
}

// NewKeyedLimiter creates a limiter allowing rps requests per second per key
// with the given burst.
func NewKeyedLimiter(rps float64, burst int, idleTTL time.Duration, log zerowrap.Logger) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &KeyedLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		log:     log,
	}
}

// Allow reports whether one more request for key fits in its bucket.
func (l *KeyedLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the TTL and returns how many were
// removed.
func (l *KeyedLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets every interval until ctx is cancelled.
func (l *KeyedLimiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = l.idleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug().
					Str(zerowrap.FieldLayer, "adapter").
					Str(zerowrap.FieldAdapter, "ratelimit").
					Int(zerowrap.FieldCount, n).
					Msg("evicted idle rate limit buckets")
			}
		}
	}
}
