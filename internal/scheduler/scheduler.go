// Package scheduler caps the number of in-flight outbound admin-API calls
// across all users and resource types.
package scheduler

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Scheduler is a process-wide concurrency gate. Every network-issuing closure
// runs under Do, so total in-flight outbound requests stay under the ceiling
// regardless of how many batches are running.
type Scheduler struct {
	sem     *semaphore.Weighted
	ceiling int64
}

// New creates a scheduler with the given in-flight ceiling. A ceiling below
// one is coerced to one.
func New(ceiling int64) *Scheduler {
	if ceiling < 1 {
		ceiling = 1
	}
	return &Scheduler{
		sem:     semaphore.NewWeighted(ceiling),
		ceiling: ceiling,
	}
}

// Do acquires a slot, runs fn, and releases the slot. Blocks until a slot is
// free or ctx is cancelled; a cancelled acquire returns the context error
// without running fn.
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn()
}

// Ceiling returns the configured in-flight ceiling.
func (s *Scheduler) Ceiling() int64 {
	return s.ceiling
}
