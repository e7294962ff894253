package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so tenant activity can be aggregated and queried
// by id regardless of which component emitted the line.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Tenant lifecycle
	KeyTenant    = "tenant"     // tenant id (slug + time suffix)
	KeyStatus    = "status"     // lifecycle status: initializing, active, paused, archived, deleted
	KeyFromState = "from_state" // transition source status
	KeyToState   = "to_state"   // transition target status
	KeyOp        = "op"         // lifecycle operation: create, pause, resume, restore, archive
	KeyBudget    = "budget"     // budget ceiling
	KeySpent     = "spent"      // budget spent so far

	// Containers
	KeyContainer = "container" // container id
	KeyRuntime   = "runtime"   // runtime status reported by the handle

	// Locking
	KeyLockPath   = "lock_path"   // resource path under lock
	KeyLockHolder = "lock_holder" // holder id
	KeyLockTTL    = "lock_ttl"    // remaining or requested TTL

	// Checkpoints & blob storage
	KeyCheckpoint = "checkpoint" // checkpoint object location
	KeyBucket     = "bucket"     // object store bucket
	KeyObjectKey  = "object_key" // object key in blob storage

	// Event routing
	KeyEvent      = "event"      // bus event name
	KeySubscriber = "subscriber" // subscriber name
	KeyTrigger    = "trigger"    // trigger kind: event, situational, probabilistic
	KeyEndpoint   = "endpoint"   // subscriber endpoint

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
	KeyCount      = "count"
)

// Tenant returns a slog.Attr for a tenant id.
func Tenant(id string) slog.Attr {
	return slog.String(KeyTenant, id)
}

// Op returns a slog.Attr for a lifecycle operation name.
func Op(name string) slog.Attr {
	return slog.String(KeyOp, name)
}

// Container returns a slog.Attr for a container id.
func Container(id string) slog.Attr {
	return slog.String(KeyContainer, id)
}

// LockPath returns a slog.Attr for a resource path under lock.
func LockPath(path string) slog.Attr {
	return slog.String(KeyLockPath, path)
}

// LockHolder returns a slog.Attr for a lock holder id.
func LockHolder(holder string) slog.Attr {
	return slog.String(KeyLockHolder, holder)
}

// Event returns a slog.Attr for a bus event name.
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// Subscriber returns a slog.Attr for a subscriber name.
func Subscriber(name string) slog.Attr {
	return slog.String(KeySubscriber, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error. Returns an empty Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
