package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkarlsen/tenantd/pkg/lock"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// ErrResourceExhausted is returned by Create when the active-tenant count is
// at the global cap. Callers retry later or queue; nothing was persisted.
var ErrResourceExhausted = errors.New("active tenant cap reached")

// ValidationError reports a rejected input field. Never retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a lifecycle call not permitted from the
// tenant's current status. The status is unchanged.
type InvalidTransitionError struct {
	TenantID  string
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("tenant %s: cannot %s from status %q", e.TenantID, e.Requested, e.Current)
}

// TimeoutError reports an external wait (container readiness, state flush)
// that exhausted its bound. Always retryable: the tenant keeps its prior
// status and the operation can be reissued.
type TimeoutError struct {
	TenantID string
	Op       string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tenant %s: %s timed out after %s", e.TenantID, e.Op, e.Elapsed)
}

// PartialFailureError collects per-item errors from a batch operation. Every
// item was attempted; the batch itself completed.
type PartialFailureError struct {
	Errors map[string]error // item id -> failure
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%d of batch failed: %s", len(e.Errors), strings.Join(ids, ", "))
}

// IsRetryable reports whether the error is transient and the same call can
// be reissued unchanged.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var timeout *TimeoutError
	var lockTimeout *lock.TimeoutError
	if errors.As(err, &timeout) || errors.As(err, &lockTimeout) {
		return true
	}
	return errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, state.ErrAckTimeout) ||
		errors.Is(err, lock.ErrLockLost)
}
