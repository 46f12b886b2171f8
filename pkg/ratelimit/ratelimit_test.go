package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
)

func TestLimiterAdmitsExactlyLimitPerWindow(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewLimiter(5, time.Minute, clock)

	for i := 0; i < 5; i++ {
		d := limiter.TryAcquire("")
		assert.True(t, d.Allowed, "attempt %d should be admitted", i)
		assert.Equal(t, 5-i-1, d.Remaining)
		clock.Advance(time.Second)
	}

	d := limiter.TryAcquire("")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 5, d.Limit)
}

func TestLimiterWindowSlides(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewLimiter(2, time.Minute, clock)

	assert.True(t, limiter.TryAcquire("").Allowed)
	clock.Advance(30 * time.Second)
	assert.True(t, limiter.TryAcquire("").Allowed)
	assert.False(t, limiter.TryAcquire("").Allowed)

	// The first hit ages out; one slot frees up.
	clock.Advance(31 * time.Second)
	assert.True(t, limiter.TryAcquire("").Allowed)
	assert.False(t, limiter.TryAcquire("").Allowed)
}

func TestLimiterResetAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := scheduler.NewFakeClock(start)
	limiter := NewLimiter(1, time.Minute, clock)

	d := limiter.TryAcquire("")
	assert.True(t, d.Allowed)
	assert.Equal(t, start.Add(time.Minute), d.ResetAt)

	d = limiter.TryAcquire("")
	assert.False(t, d.Allowed)
	assert.Equal(t, start.Add(time.Minute), d.ResetAt)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewLimiter(1, time.Minute, clock)

	assert.True(t, limiter.TryAcquire("10.0.0.1").Allowed)
	assert.False(t, limiter.TryAcquire("10.0.0.1").Allowed)
	assert.True(t, limiter.TryAcquire("10.0.0.2").Allowed)
}

func TestCleanupDropsIdleKeys(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewLimiter(1, time.Minute, clock)

	limiter.TryAcquire("a")
	clock.Advance(30 * time.Second)
	limiter.TryAcquire("b")

	clock.Advance(45 * time.Second) // "a" idle, "b" still in window
	limiter.Cleanup()

	assert.Equal(t, 1, limiter.Keys())
}
