package ratelimit

import (
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// Limiter is a per-key sliding-window rate limiter. Idle keys are evicted by
// a periodic sweep piggybacked on Allow calls, bounding memory without a
// background goroutine.
type Limiter struct {
	mu            sync.Mutex
	hits          map[string][]time.Time
	lastSweep     time.Time
	sweepInterval time.Duration
	now           func() time.Time
}

func New() *Limiter {
	return &Limiter{
		hits:          make(map[string][]time.Time),
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
}

// Allow records a hit for key and reports whether it stays within limit
// requests per window.
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSweep.IsZero() {
		l.lastSweep = now
	} else if now.Sub(l.lastSweep) > l.sweepInterval {
		l.sweep(now)
		l.lastSweep = now
	}

	cutoff := now.Add(-window)
	times := l.hits[key]
	for len(times) > 0 && !times[0].After(cutoff) {
		times = times[1:]
	}

	if len(times) >= limit {
		l.hits[key] = times
		return false
	}

	l.hits[key] = append(times, now)
	return true
}

// sweep drops entries older than the sweep interval and deletes empty keys.
// Caller holds the lock.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.sweepInterval)
	for key, times := range l.hits {
		for len(times) > 0 && !times[0].After(cutoff) {
			times = times[1:]
		}
		if len(times) == 0 {
			delete(l.hits, key)
			continue
		}
		l.hits[key] = times
	}
}
