// Package state provides access to the shared tenant state store.
//
// All transient per-tenant runtime data lives here: the state hash, the
// shared blob, the two score-ordered work queues, the control channel the
// orchestrator signals workers on, the flush-acknowledgment channel, the
// global event bus, and the bounded checkpoint recency index.
//
// The production implementation is Redis-backed; MemoryStore mirrors the
// same semantics in-process for tests and single-node development.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Queue names for the two score-ordered work queues.
const (
	QueuePending = "pending"
	QueueReview  = "review"
)

// Queues lists every work queue a tenant owns, in checkpoint order.
var Queues = []string{QueuePending, QueueReview}

// ErrAckTimeout is returned by AwaitAck when no acknowledgment arrives
// within the timeout. Always retryable: the worker may simply be slow.
var ErrAckTimeout = errors.New("timed out waiting for acknowledgment")

// QueueEntry is one record in a score-ordered work queue.
// Priority doubles as the queue score; lower values drain first.
type QueueEntry struct {
	Path     string  `json:"path"`
	Priority float64 `json:"priority"`
	Status   string  `json:"status"`
}

// ControlMessage is a typed message on a tenant's control channel.
// The wire form is flat JSON: {"type": ..., <payload fields>}.
type ControlMessage struct {
	Type    string
	Payload map[string]any
}

// Control message types understood by workers.
const (
	ControlPause        = "pause"
	ControlResume       = "resume"
	ControlRestoreState = "restore_state"
	ControlStartMode    = "start_work_mode"
)

// MarshalJSON flattens the payload into the top-level object.
func (m ControlMessage) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Payload)+1)
	for k, v := range m.Payload {
		flat[k] = v
	}
	flat["type"] = m.Type
	return json.Marshal(flat)
}

// UnmarshalJSON splits the type field back out of the flat object.
func (m *ControlMessage) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	typ, _ := flat["type"].(string)
	delete(flat, "type")
	m.Type = typ
	m.Payload = flat
	return nil
}

// Event is one message received from the global event bus.
type Event struct {
	Name       string
	Payload    map[string]any
	ReceivedAt time.Time
}

// EventStream delivers bus events until closed.
type EventStream interface {
	// Events returns the receive channel. The channel is closed when the
	// stream is closed or its context is cancelled.
	Events() <-chan Event

	// Close stops delivery and releases the subscription.
	Close() error
}

// Store is the shared state store contract.
//
// Thread safety: implementations must be safe for concurrent use.
type Store interface {
	// State returns all fields of the tenant's state hash.
	State(ctx context.Context, tenantID string) (map[string]string, error)

	// SetStateFields merges fields into the tenant's state hash.
	SetStateFields(ctx context.Context, tenantID string, fields map[string]string) error

	// ReplaceState atomically swaps the whole state hash for the given fields.
	ReplaceState(ctx context.Context, tenantID string, fields map[string]string) error

	// StateField reads one field; the bool reports presence.
	StateField(ctx context.Context, tenantID, field string) (string, bool, error)

	// SharedBlob returns the tenant's shared JSON blob, nil when absent.
	SharedBlob(ctx context.Context, tenantID string) ([]byte, error)

	// SetSharedBlob replaces the shared blob.
	SetSharedBlob(ctx context.Context, tenantID string, blob []byte) error

	// QueueEntries returns the queue in score order, lowest first.
	QueueEntries(ctx context.Context, tenantID, queue string) ([]QueueEntry, error)

	// ReplaceQueue clears the queue and reinserts the entries in order,
	// preserving each entry's priority as its score.
	ReplaceQueue(ctx context.Context, tenantID, queue string, entries []QueueEntry) error

	// PushQueue adds one entry to the queue.
	PushQueue(ctx context.Context, tenantID, queue string, entry QueueEntry) error

	// QueueLen returns the number of entries in the queue.
	QueueLen(ctx context.Context, tenantID, queue string) (int64, error)

	// SendControl publishes a control message on the tenant's channel.
	SendControl(ctx context.Context, tenantID string, msg ControlMessage) error

	// SendControlAwaitAck subscribes to the tenant's ack channel, publishes
	// the control message, and blocks until the worker acknowledges with
	// ackType or the timeout elapses (ErrAckTimeout). Subscribing before
	// publishing means an immediate ack cannot be lost.
	SendControlAwaitAck(ctx context.Context, tenantID string, msg ControlMessage, ackType string, timeout time.Duration) error

	// PushCheckpointRef prepends a checkpoint location to the tenant's
	// recency index, trimming the index to keep entries.
	PushCheckpointRef(ctx context.Context, tenantID, location string, keep int) error

	// CheckpointRefs returns the recency index, newest first.
	CheckpointRefs(ctx context.Context, tenantID string) ([]string, error)

	// PublishEvent publishes a named event on the global bus.
	PublishEvent(ctx context.Context, event string, payload map[string]any) error

	// SubscribeEvents subscribes to every named bus event.
	SubscribeEvents(ctx context.Context) (EventStream, error)

	// DeleteTenant removes every transient key belonging to the tenant.
	DeleteTenant(ctx context.Context, tenantID string) error

	// Close releases the underlying connection.
	Close() error
}
