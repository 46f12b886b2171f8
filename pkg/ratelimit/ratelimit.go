package ratelimit

import (
	"sync"
	"time"

	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
)

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// Limiter admits at most max events per sliding window, independently
// per key. Window and max are immutable after construction.
type Limiter struct {
	max    int
	window time.Duration
	clock  scheduler.Clock

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewLimiter creates a limiter admitting max events per window.
func NewLimiter(max int, window time.Duration, clock scheduler.Clock) *Limiter {
	if clock == nil {
		clock = scheduler.System
	}
	return &Limiter{
		max:    max,
		window: window,
		clock:  clock,
		hits:   make(map[string][]time.Time),
	}
}

// TryAcquire attempts to admit one event for key. The empty key is a
// valid key, used by callers that want a single global window.
func (l *Limiter) TryAcquire(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	retained := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			retained = append(retained, hit)
		}
	}

	if len(retained) >= l.max {
		l.hits[key] = retained
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   retained[0].Add(l.window),
			Limit:     l.max,
		}
	}

	retained = append(retained, now)
	l.hits[key] = retained
	return Decision{
		Allowed:   true,
		Remaining: l.max - len(retained),
		ResetAt:   retained[0].Add(l.window),
		Limit:     l.max,
	}
}

// Cleanup drops keys whose every hit has aged out of the window. Wire
// it to the scheduler so idle keys do not accumulate.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-l.window)
	for key, hits := range l.hits {
		idle := true
		for _, hit := range hits {
			if hit.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.hits, key)
		}
	}
}

// Keys returns the number of tracked keys. Exposed for health details.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
