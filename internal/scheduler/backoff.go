package scheduler

import (
	"sync"
	"time"
)

// StoreBackoff rate-limits work after repeated persistence failures.
// Once the consecutive failure count passes the threshold, callers skip
// their store access until the retry window since the last failure has
// elapsed. One successful read resets the counter. Tasks that hit the
// same store share one instance.
type StoreBackoff struct {
	mu          sync.Mutex
	maxFailures int
	retryAfter  time.Duration
	failures    int
	lastFailure time.Time
}

func NewStoreBackoff(maxFailures int, retryAfter time.Duration) *StoreBackoff {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if retryAfter <= 0 {
		retryAfter = 300 * time.Second
	}
	return &StoreBackoff{maxFailures: maxFailures, retryAfter: retryAfter}
}

// ShouldSkip reports whether store access should be skipped right now.
func (b *StoreBackoff) ShouldSkip(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures > b.maxFailures && now.Sub(b.lastFailure) < b.retryAfter
}

// Failure records one store failure.
func (b *StoreBackoff) Failure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = now
}

// Success resets the failure counter.
func (b *StoreBackoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
