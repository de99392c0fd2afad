package ports

import (
	"context"
	"time"
)

// SweepLock elects a single worker instance per background sweep. Acquire
// returns false when another holder owns the lock; sweeps simply skip the
// round in that case.
type SweepLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}
