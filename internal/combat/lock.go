package combat

import (
	"context"
	"time"
)

// DefaultLockWait bounds how long an operation waits for its aggregate
// before giving up with a Conflict error.
const DefaultLockWait = 2 * time.Second

// sem is a single-slot semaphore giving each aggregate one writer at a
// time. Operations on different aggregates never share a semaphore, so
// they proceed fully in parallel.
type sem chan struct{}

func newSem() sem {
	return make(sem, 1)
}

// acquire blocks until the slot is free, the wait expires, or ctx is done.
func (s sem) acquire(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s sem) release() {
	<-s
}
