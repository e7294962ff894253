package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/internal/telemetry"
	"github.com/mkarlsen/tenantd/pkg/blob"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// Metrics provides observability for checkpoint operations. Pass nil to
// disable collection.
type Metrics interface {
	ObserveSave(d time.Duration, err error)
	ObserveRestore(d time.Duration, err error)
}

// Service saves and restores tenant snapshots.
type Service struct {
	states    state.Store
	blobs     blob.Store
	reg       registry.Store
	indexSize int
	metrics   Metrics
	now       func() time.Time
}

// NewService creates a checkpoint service. indexSize <= 0 uses
// DefaultIndexSize; metrics may be nil.
func NewService(states state.Store, blobs blob.Store, reg registry.Store, indexSize int, metrics Metrics) *Service {
	if indexSize <= 0 {
		indexSize = DefaultIndexSize
	}
	return &Service{
		states:    states,
		blobs:     blobs,
		reg:       reg,
		indexSize: indexSize,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Save captures the tenant's full runtime state into one immutable blob and
// prepends its location to the recency index.
func (s *Service) Save(ctx context.Context, tenantID string) (ref *Ref, err error) {
	start := time.Now()
	ctx, span := telemetry.StartCheckpointSpan(ctx, "save", tenantID)
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSave(time.Since(start), err)
		}
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	fields, err := s.states.State(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read state for %s: %w", tenantID, err)
	}

	shared, err := s.states.SharedBlob(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read shared blob for %s: %w", tenantID, err)
	}

	queues := make(map[string][]state.QueueEntry, len(state.Queues))
	for _, queue := range state.Queues {
		entries, err := s.states.QueueEntries(ctx, tenantID, queue)
		if err != nil {
			return nil, fmt.Errorf("failed to read queue %s for %s: %w", queue, tenantID, err)
		}
		queues[queue] = entries
	}

	tenant, err := s.reg.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	takenAt := s.now().UTC()
	snap := Snapshot{
		TenantID:    tenantID,
		TakenAt:     takenAt,
		State:       fields,
		Shared:      shared,
		Queues:      queues,
		BudgetSpent: tenant.BudgetSpent,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot for %s: %w", tenantID, err)
	}

	location := snapshotKey(tenantID, takenAt)
	if err := s.blobs.Put(ctx, location, data); err != nil {
		return nil, fmt.Errorf("failed to store snapshot %s: %w", location, err)
	}

	if err := s.states.PushCheckpointRef(ctx, tenantID, location, s.indexSize); err != nil {
		return nil, fmt.Errorf("failed to index snapshot %s: %w", location, err)
	}

	logger.Info("Checkpoint saved",
		logger.KeyTenant, tenantID,
		logger.KeyCheckpoint, location,
		logger.KeyCount, len(queues))

	return &Ref{TenantID: tenantID, Location: location, TakenAt: takenAt}, nil
}

// List returns the tenant's recency index, newest first. Snapshots older
// than the index bound still exist in blob storage but are not listed.
func (s *Service) List(ctx context.Context, tenantID string) ([]string, error) {
	return s.states.CheckpointRefs(ctx, tenantID)
}

// Restore replaces the tenant's runtime state with the snapshot at location.
//
// The snapshot is validated before any live state is touched: a missing,
// truncated, or undecodable object returns *CorruptError and leaves the
// tenant untouched. Restore is idempotent; restoring the same location twice
// converges on the same state. The budget mirror is merged rather than
// overwritten: the larger of the snapshot spend and the current mirror wins,
// so a restore never rolls spend back.
func (s *Service) Restore(ctx context.Context, tenantID, location string) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartCheckpointSpan(ctx, "restore", tenantID,
		telemetry.CheckpointLocation(location))
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveRestore(time.Since(start), err)
		}
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	data, err := s.blobs.Get(ctx, location)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return &CorruptError{Location: location, Reason: "snapshot missing", Err: err}
		}
		return fmt.Errorf("failed to fetch snapshot %s: %w", location, err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return &CorruptError{Location: location, Reason: "snapshot undecodable", Err: err}
	}
	if snap.TenantID != tenantID {
		return &CorruptError{
			Location: location,
			Reason:   fmt.Sprintf("snapshot belongs to tenant %q, not %q", snap.TenantID, tenantID),
		}
	}

	tenant, err := s.reg.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	if err := s.states.ReplaceState(ctx, tenantID, snap.State); err != nil {
		return fmt.Errorf("failed to restore state for %s: %w", tenantID, err)
	}
	if err := s.states.SetSharedBlob(ctx, tenantID, snap.Shared); err != nil {
		return fmt.Errorf("failed to restore shared blob for %s: %w", tenantID, err)
	}
	for _, queue := range state.Queues {
		if err := s.states.ReplaceQueue(ctx, tenantID, queue, snap.Queues[queue]); err != nil {
			return fmt.Errorf("failed to restore queue %s for %s: %w", queue, tenantID, err)
		}
	}

	// Spend is monotonic and the registry mirror may have advanced past
	// the snapshot. Merge to the larger value in one write so no moment
	// ever shows a lower total than the mirror held before the restore.
	spent := snap.BudgetSpent
	if tenant.BudgetSpent > spent {
		spent = tenant.BudgetSpent
	}
	if err := s.reg.SetBudgetSpent(ctx, tenantID, spent); err != nil {
		return fmt.Errorf("failed to restore budget for %s: %w", tenantID, err)
	}

	logger.Info("Checkpoint restored",
		logger.KeyTenant, tenantID,
		logger.KeyCheckpoint, location)
	return nil
}

// decodeSnapshot strictly decodes a snapshot. Unknown fields, trailing
// garbage, and missing identity all fail.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after snapshot object")
	}
	if snap.TenantID == "" {
		return nil, errors.New("snapshot has no tenant_id")
	}
	if snap.TakenAt.IsZero() {
		return nil, errors.New("snapshot has no taken_at")
	}
	return &snap, nil
}
