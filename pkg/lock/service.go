package lock

import (
	"context"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
)

// Metrics provides observability for lock operations. Pass nil to disable
// collection with zero overhead.
type Metrics interface {
	RecordAcquire(acquired bool)
	RecordRelease(released bool)
	RecordWait(d time.Duration, acquired bool)
	RecordForceRelease(count int)
}

// Service is the lock service facade over a Store.
type Service struct {
	store   Store
	metrics Metrics
}

// NewService creates a lock service. metrics may be nil.
func NewService(store Store, metrics Metrics) *Service {
	return &Service{store: store, metrics: metrics}
}

// Acquire attempts to take the lease on path for holder. Returns true when
// the lease was taken; false means someone else holds a valid lease. There
// is no side effect on failure.
func (s *Service) Acquire(ctx context.Context, path, holder string, ttl time.Duration) (bool, error) {
	acquired, err := s.store.AcquireIfFree(ctx, path, holder, ttl)
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RecordAcquire(acquired)
	}
	if acquired {
		logger.Debug("Lock acquired", logger.KeyLockPath, path, logger.KeyLockHolder, holder, logger.KeyLockTTL, ttl)
	}
	return acquired, nil
}

// Release clears the lease on path only if holder still owns it. A false
// return means the lease already expired (and possibly belongs to another
// holder now); the lock they hold is untouched.
func (s *Service) Release(ctx context.Context, path, holder string) (bool, error) {
	released, err := s.store.ReleaseIfHeld(ctx, path, holder)
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RecordRelease(released)
	}
	if !released {
		logger.Warn("Release by non-holder ignored", logger.KeyLockPath, path, logger.KeyLockHolder, holder)
	}
	return released, nil
}

// WaitAcquire polls Acquire until success or timeout. On timeout it returns
// a *TimeoutError naming the path and elapsed wait; the caller retries with
// backoff or gives up.
func (s *Service) WaitAcquire(ctx context.Context, path, holder string, ttl, timeout, pollInterval time.Duration) error {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		acquired, err := s.store.AcquireIfFree(ctx, path, holder, ttl)
		if err != nil {
			return err
		}
		if acquired {
			elapsed := time.Since(start)
			if s.metrics != nil {
				s.metrics.RecordWait(elapsed, true)
			}
			logger.Debug("Lock acquired after wait",
				logger.KeyLockPath, path,
				logger.KeyLockHolder, holder,
				logger.KeyDurationMs, elapsed.Milliseconds())
			return nil
		}

		now := time.Now()
		if !now.Before(deadline) {
			if s.metrics != nil {
				s.metrics.RecordWait(now.Sub(start), false)
			}
			return &TimeoutError{Path: path, Elapsed: now.Sub(start)}
		}

		wait := pollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Inspect reports the current holder and remaining TTL of path, nil when
// the path is unheld.
func (s *Service) Inspect(ctx context.Context, path string) (*Info, error) {
	return s.store.Inspect(ctx, path)
}

// ListAll returns every currently held lock.
func (s *Service) ListAll(ctx context.Context) ([]Info, error) {
	return s.store.List(ctx)
}

// ForceReleaseAll removes every lock unconditionally and returns the count.
//
// Administrative escape hatch only. Unsafe while any writer still believes
// it holds a lease: that writer will keep writing without exclusion.
func (s *Service) ForceReleaseAll(ctx context.Context) (int, error) {
	n, err := s.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordForceRelease(n)
	}
	if n > 0 {
		logger.Warn("Force-released all locks", logger.KeyCount, n)
	}
	return n, nil
}
