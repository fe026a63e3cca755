// Package feed implements the surebets feed client: an adaptive polling
// rate limiter and a cursor-paginated HTTP poller.
package feed

import (
	"context"
	"sync"
	"time"
)

// AdaptiveLimiter is the sole throttle on feed polling. The exposed
// interval grows exponentially with consecutive rate-limit hits and
// shrinks one step per success:
//
//	interval = min(maxInterval, baseInterval * 2^hits)
//
// There is no wall-clock window; Acquire simply suspends the caller for
// the current interval.
type AdaptiveLimiter struct {
	mu   sync.Mutex
	base time.Duration
	max  time.Duration
	hits int // consecutive unmatched rate-limit hits
}

// NewAdaptiveLimiter creates a limiter with the given base and ceiling.
func NewAdaptiveLimiter(base, max time.Duration) *AdaptiveLimiter {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return &AdaptiveLimiter{base: base, max: max}
}

// Interval returns the current polling interval.
func (l *AdaptiveLimiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intervalLocked()
}

func (l *AdaptiveLimiter) intervalLocked() time.Duration {
	// 2^hits saturates well before overflow: the ceiling dominates once
	// base<<hits exceeds it.
	iv := l.base
	for i := 0; i < l.hits; i++ {
		iv *= 2
		if iv >= l.max {
			return l.max
		}
	}
	if iv > l.max {
		return l.max
	}
	return iv
}

// Acquire suspends the caller for exactly the current interval, or until
// ctx is cancelled.
func (l *AdaptiveLimiter) Acquire(ctx context.Context) error {
	iv := l.Interval()
	timer := time.NewTimer(iv)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OnRateLimit records a 429 from the feed, doubling the interval up to
// the ceiling.
func (l *AdaptiveLimiter) OnRateLimit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits++
}

// OnSuccess unwinds one backoff step. Never goes below the base interval.
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hits > 0 {
		l.hits--
	}
}

// Reset returns the limiter to the base interval.
func (l *AdaptiveLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = 0
}
