package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute, stop)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "bucket exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per key")

	now = now.Add(30 * time.Second)
	assert.False(t, rl.Allow("10.0.0.1"), "no refill before a full interval")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "refilled after one interval")
}

func TestRateLimiterRefillIsCapped(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, stop)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("k"))
	now = now.Add(10 * time.Minute)

	assert.True(t, rl.Allow("k"))
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
}

func TestRateLimiterCleanup(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute, stop)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(2 * time.Minute)
	rl.Allow("fresh")
	now = now.Add(2 * time.Minute)

	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "stale")
	assert.Contains(t, rl.visitors, "fresh")
}
