// Package lock implements the distributed lock service.
//
// Locks are advisory, per-resource-path exclusive leases with a TTL.
// Independent worker processes writing the same tenant artifact opt in by
// acquiring the path before writing. The TTL bounds the blast radius of a
// crashed holder: the lease expires and the path becomes acquirable again.
// That trade means a lock can be silently reclaimed from a merely-slow
// holder, so callers must treat a lost lock as recoverable, never as
// corruption.
//
// Acquire and release are single atomic primitives against the shared store
// (set-if-absent and compare-and-delete), never read-then-write.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLockLost signals that a held lock expired and was reclaimed by another
// holder. Callers re-acquire or abort; they must not assume exclusivity.
var ErrLockLost = errors.New("lock lost: lease expired and was reclaimed")

// TimeoutError is returned by WaitAcquire when the path stayed held for the
// whole wait. Retryable with backoff.
type TimeoutError struct {
	Path    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring lock on %q after %s", e.Path, e.Elapsed)
}

// Info describes a currently held lock.
type Info struct {
	Path      string        `json:"path"`
	Holder    string        `json:"holder"`
	Remaining time.Duration `json:"remaining"`
}

// Store is the atomic primitive layer beneath the service.
//
// Implementations must make AcquireIfFree and ReleaseIfHeld indivisible:
// no interleaving of a concurrent acquire or release may observe a state
// between the check and the mutation.
type Store interface {
	// AcquireIfFree sets holder on path only if the path is currently
	// unset or expired. Returns true when the lease was taken. No side
	// effect on failure.
	AcquireIfFree(ctx context.Context, path, holder string, ttl time.Duration) (bool, error)

	// ReleaseIfHeld clears the binding only if the current holder matches.
	// Returns true when the lock was released, false when the caller no
	// longer held it.
	ReleaseIfHeld(ctx context.Context, path, holder string) (bool, error)

	// Inspect returns the current holder and remaining TTL, or nil when
	// the path is unheld.
	Inspect(ctx context.Context, path string) (*Info, error)

	// List returns every currently held lock.
	List(ctx context.Context) ([]Info, error)

	// Clear removes every lock unconditionally, returning the count.
	Clear(ctx context.Context) (int, error)

	// Close releases the underlying connection.
	Close() error
}
