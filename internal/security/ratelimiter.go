// Package security implements the in-process sliding-window rate limiter
// and brute-force detector, the periodic pattern scanner over business
// tables, persistent blocks, and audit chain verification.
package security

import (
	"sync"
	"time"
)

const (
	rateLimitWindow    = 60 * time.Second
	rateLimitBlockFor  = 5 * time.Minute
	rateLimitCleanupAge = 2 * rateLimitWindow
)

type rateWindow struct {
	timestamps []time.Time
	blockedUntil time.Time
}

// RateLimiter is a per-key sliding window of request timestamps. Once a key
// exceeds its limit it is rejected outright until the block expires — the
// request that crosses the limit is recorded and rejected, and requests
// rejected while blocked never join the window, so a saturated key cannot push
// itself back under the limit by waiting.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*rateWindow
}

func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit, windows: map[string]*rateWindow{}}
}

// Allow reports whether the request for key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		w = &rateWindow{}
		rl.windows[key] = w
	}

	if !w.blockedUntil.IsZero() && now.Before(w.blockedUntil) {
		return false
	}

	cutoff := now.Add(-rateLimitWindow)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = append(kept, now)

	if len(w.timestamps) > rl.limit {
		w.blockedUntil = now.Add(rateLimitBlockFor)
		return false
	}
	return true
}

// Cleanup removes windows idle longer than twice the sliding window, so the
// map doesn't grow unbounded with one-off callers.
func (rl *RateLimiter) Cleanup() int {
	now := time.Now()
	removed := 0
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if !w.blockedUntil.IsZero() && now.Before(w.blockedUntil) {
			continue
		}
		if len(w.timestamps) == 0 {
			delete(rl.windows, key)
			removed++
			continue
		}
		last := w.timestamps[len(w.timestamps)-1]
		if now.Sub(last) > rateLimitCleanupAge {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}
