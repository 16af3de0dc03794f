package scanner

import (
	"context"
	"time"
)

// RateLimiter imposes a fixed delay on every probe after it enters the gate.
//
// It is a per-task floor, not a shared token bucket: tasks holding different
// gate slots wait in parallel, so with more than one slot the aggregate
// request rate can exceed the nominal limit.
type RateLimiter struct {
	interval time.Duration
}

// NewRateLimiter returns a limiter whose floor is 1/perSecond seconds.
// A non-positive rate disables the delay.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{interval: time.Duration(float64(time.Second) / perSecond)}
}

// Interval returns the floor delay
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Wait pays the floor delay, returning early with ctx's error if ctx ends first
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.interval <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
