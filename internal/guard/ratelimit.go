package guard

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateLimiter admits at most limit requests per caller key within a sliding
// window. Keys idle for a full window expire and are evicted by the cache
// janitor.
type RateLimiter struct {
	mu      sync.Mutex
	entries *cache.Cache
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		entries: cache.New(window, window),
		limit:   limit,
		window:  window,
		now:     now,
	}
}

// Allow records a request for key and reports whether it is within the
// limit. Rejected requests are not recorded.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	if v, ok := r.entries.Get(key); ok {
		for _, at := range v.([]time.Time) {
			if at.After(cutoff) {
				recent = append(recent, at)
			}
		}
	}

	if len(recent) >= r.limit {
		r.entries.Set(key, recent, cache.DefaultExpiration)
		return false
	}

	recent = append(recent, now)
	r.entries.Set(key, recent, cache.DefaultExpiration)
	return true
}

// Remaining returns how many more requests key may make in the current
// window.
func (r *RateLimiter) Remaining(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries.Get(key)
	if !ok {
		return r.limit
	}
	cutoff := r.now().Add(-r.window)
	used := 0
	for _, at := range v.([]time.Time) {
		if at.After(cutoff) {
			used++
		}
	}
	if used >= r.limit {
		return 0
	}
	return r.limit - used
}

// Keys returns the number of tracked callers.
func (r *RateLimiter) Keys() int {
	return r.entries.ItemCount()
}

// Window reports the limiter's window length.
func (r *RateLimiter) Window() time.Duration {
	return r.window
}
