package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/evasion"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	// Delay reports the current delay window.
	Delay() (time.Duration, time.Duration)
}

// New returns a limiter with a fixed [minDelay, maxDelay] window, or one
// that adapts the window to failures when adaptive is set.
func New(minDelay, maxDelay time.Duration, adaptive bool) RateLimiter {
	if adaptive {
		return NewAdaptiveRateLimiter(minDelay, maxDelay)
	}
	return NewSimpleRateLimiter(minDelay, maxDelay)
}

// SimpleRateLimiter pauses for a jittered delay in [minDelay, maxDelay] on
// every Wait, so consecutive requests are always spaced by at least
// minDelay of idle time.
type SimpleRateLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	after    func(time.Duration) <-chan time.Time
	mu       sync.Mutex
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		after:    time.After,
	}
}

// WithTimer replaces time.After; tests pass a channel that fires at once.
func (r *SimpleRateLimiter) WithTimer(after func(time.Duration) <-chan time.Time) *SimpleRateLimiter {
	r.after = after
	return r
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	delay := r.calculateDelay()
	r.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.after(delay):
		return nil
	}
}

// Delay returns the current window.
func (r *SimpleRateLimiter) Delay() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if r.minDelay >= r.maxDelay {
		return r.minDelay
	}
	return evasion.RandomDelay(r.minDelay, r.maxDelay)
}

const (
	errorsBeforeBackoff  = 3
	successesBeforeRelax = 5
	backoffFactor        = 1.5
	relaxFactor          = 0.9
	maxAdaptiveMin       = 60 * time.Second
	maxAdaptiveMax       = 120 * time.Second
)

// AdaptiveRateLimiter widens the delay window after a run of failed keys and
// slowly narrows it again after successes, never below its starting window.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	floorMin time.Duration
	floorMax time.Duration
	failures int
	streak   int
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		floorMin:          minDelay,
		floorMax:          maxDelay,
	}
}

// RecordSuccess counts a fetched key. Every sixth success in a row shrinks
// the window by 10%.
func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failures = 0
	a.streak++
	if a.streak <= successesBeforeRelax {
		return
	}
	a.streak = 0
	a.minDelay = max(scale(a.minDelay, relaxFactor), a.floorMin)
	a.maxDelay = max(scale(a.maxDelay, relaxFactor), a.floorMax)
}

// RecordError counts a failed key. Three in a row widen the window by half,
// up to 60s/120s.
func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streak = 0
	a.failures++
	if a.failures < errorsBeforeBackoff {
		return
	}
	a.failures = 0
	a.minDelay = min(scale(a.minDelay, backoffFactor), maxAdaptiveMin)
	a.maxDelay = min(scale(a.maxDelay, backoffFactor), maxAdaptiveMax)
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}
