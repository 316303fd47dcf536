package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRateLimiterAllowsLimitThenBlocks checks spec §8's quantified
// invariant: the count of requests recorded in any window for one key
// never exceeds limit+1 before a block takes effect (the request that
// crosses the limit is itself recorded and rejected, then blocks further
// requests outright).
func TestRateLimiterAllowsLimitThenBlocks(t *testing.T) {
	rl := NewRateLimiter(5)
	allowed := 0
	for i := 0; i < 6; i++ {
		if rl.Allow("ip:1.2.3.4") {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)

	// Once blocked, further requests are rejected without joining the window.
	assert.False(t, rl.Allow("ip:1.2.3.4"))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.Allow("ip:a"))
	assert.True(t, rl.Allow("ip:b"))
	assert.False(t, rl.Allow("ip:a"))
}

func TestRateLimiterCleanupRemovesIdleWindows(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.Allow("ip:stale")
	// Force the window to look old by rewriting its last timestamp.
	rl.mu.Lock()
	w := rl.windows["ip:stale"]
	w.timestamps[0] = w.timestamps[0].Add(-3 * rateLimitWindow)
	rl.mu.Unlock()

	removed := rl.Cleanup()
	assert.Equal(t, 1, removed)
}
