package security

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by client. Each key may make
// at most limit requests within any window-long span.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per key per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it is within budget.
// Rejected requests are not recorded.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	r.sweep(now, cutoff)

	valid := prune(r.hits[key], cutoff)
	if len(valid) >= r.limit {
		r.hits[key] = valid
		return false
	}

	r.hits[key] = append(valid, now)
	return true
}

// Window returns the span requests are counted over.
func (r *RateLimiter) Window() time.Duration {
	return r.window
}

// sweep drops keys with no recent requests, at most once per window.
func (r *RateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(r.lastSweep) < r.window {
		return
	}
	r.lastSweep = now
	for key, ts := range r.hits {
		if valid := prune(ts, cutoff); len(valid) == 0 {
			delete(r.hits, key)
		} else {
			r.hits[key] = valid
		}
	}
}

// prune removes timestamps at or before cutoff. ts is sorted ascending.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
