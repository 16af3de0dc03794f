package scanner

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate caps how many probes run at once. HTTP and banner probes share one
// gate; DNS lookups are not gated.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate returns a gate with size slots. Sizes below one are raised to one.
func NewGate(size int) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size))}
}

// Acquire blocks until a slot is free or ctx is done
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire
func (g *Gate) Release() {
	g.sem.Release(1)
}
