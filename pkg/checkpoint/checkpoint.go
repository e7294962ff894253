// Package checkpoint snapshots tenant runtime state to blob storage and
// restores it.
//
// A snapshot is one immutable JSON object under
// checkpoints/<tenant>/<timestamp>.json capturing the state hash, the shared
// blob, both work queues in score order, and the budget spend at the moment
// of capture. A bounded recency index in the state store points at the most
// recent snapshots; older objects stay in blob storage and remain restorable
// by explicit location.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkarlsen/tenantd/pkg/state"
)

// keyPrefix is the blob key namespace for snapshots.
const keyPrefix = "checkpoints"

// DefaultIndexSize bounds the per-tenant recency index.
const DefaultIndexSize = 10

// CorruptError is returned by Restore when the snapshot at a location is
// missing, truncated, or fails strict decoding. The tenant's live state is
// untouched when this is returned.
type CorruptError struct {
	Location string
	Reason   string
	Err      error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt checkpoint at %q: %s: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt checkpoint at %q: %s", e.Location, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Ref identifies one stored snapshot.
type Ref struct {
	TenantID string    `json:"tenant_id"`
	Location string    `json:"location"`
	TakenAt  time.Time `json:"taken_at"`
}

// Snapshot is the on-disk snapshot format.
type Snapshot struct {
	TenantID    string                        `json:"tenant_id"`
	TakenAt     time.Time                     `json:"taken_at"`
	State       map[string]string             `json:"state"`
	Shared      json.RawMessage               `json:"shared,omitempty"`
	Queues      map[string][]state.QueueEntry `json:"queues"`
	BudgetSpent float64                       `json:"budget_spent"`
}

// snapshotKey builds the immutable blob key for a snapshot taken at t.
func snapshotKey(tenantID string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", keyPrefix, tenantID, t.UTC().Format(time.RFC3339Nano))
}
