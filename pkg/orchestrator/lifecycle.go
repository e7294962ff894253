package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/internal/telemetry"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// ackStateSaved is the ack type workers send after flushing state.
const ackStateSaved = "state_saved"

// handleFor resolves the tenant's container handle: the ledger entry when
// this process created the container, otherwise a runtime lookup by the
// tenant's stable container name. The lookup is what lets a process pause,
// archive, or delete a tenant some other process created.
func (o *Orchestrator) handleFor(ctx context.Context, id string) (Handle, bool, error) {
	if handle, ok := o.ledger.Handle(id); ok {
		return handle, true, nil
	}
	return o.runtime.LookupContainer(ctx, id)
}

// Pause flushes and suspends an active tenant.
//
// The worker is told to flush in-memory state and the call blocks for its
// acknowledgment up to FlushTimeout. A timeout returns *TimeoutError with
// the container still running and the status unchanged, so Pause can simply
// be reissued. After the ack: on-demand checkpoint, container stop (not
// remove), paused status.
func (o *Orchestrator) Pause(ctx context.Context, id string) (err error) {
	defer o.observe("pause", time.Now(), &err)
	ctx, span := telemetry.StartLifecycleSpan(ctx, "pause", id)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	status, err := o.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if status != registry.StatusActive {
		return &InvalidTransitionError{TenantID: id, Current: string(status), Requested: "pause"}
	}

	start := time.Now()
	err = o.states.SendControlAwaitAck(ctx, id,
		state.ControlMessage{Type: state.ControlPause}, ackStateSaved, o.cfg.FlushTimeout)
	if err != nil {
		if errors.Is(err, state.ErrAckTimeout) {
			return &TimeoutError{TenantID: id, Op: "state flush", Elapsed: time.Since(start)}
		}
		return fmt.Errorf("failed to signal pause: %w", err)
	}

	if _, err := o.checkpoints.Save(ctx, id); err != nil {
		return fmt.Errorf("failed to checkpoint before pause: %w", err)
	}

	handle, ok, err := o.handleFor(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up container: %w", err)
	}
	if ok {
		if err := handle.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop container: %w", err)
		}
	}

	if err := o.reg.UpdateStatus(ctx, id, registry.StatusPaused); err != nil {
		return fmt.Errorf("failed to mark tenant paused: %w", err)
	}
	o.ledger.SetStatus(id, registry.StatusPaused)
	o.publishActiveCount()

	o.emit(ctx, EventTenantPaused, id, map[string]any{"tenant_id": id})
	o.audit(ctx, id, EventTenantPaused, "", "")

	logger.Info("Tenant paused", logger.KeyTenant, id)
	return nil
}

// Resume reactivates a paused tenant.
//
// With a live container handle the container is started in place and polled
// for readiness; without one (after an orchestrator restart) Resume
// delegates to Restore.
func (o *Orchestrator) Resume(ctx context.Context, id string) (err error) {
	defer o.observe("resume", time.Now(), &err)
	ctx, span := telemetry.StartLifecycleSpan(ctx, "resume", id)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	status, err := o.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if status != registry.StatusPaused {
		return &InvalidTransitionError{TenantID: id, Current: string(status), Requested: "resume"}
	}
	if err := o.checkActiveCap(ctx); err != nil {
		return err
	}

	handle, ok := o.ledger.Handle(id)
	if !ok {
		logger.Info("No live container handle, delegating resume to restore", logger.KeyTenant, id)
		return o.Restore(ctx, id)
	}

	if err := handle.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	if err := o.waitReady(ctx, id, handle); err != nil {
		return err
	}

	if err := o.states.SendControl(ctx, id, state.ControlMessage{Type: state.ControlResume}); err != nil {
		return fmt.Errorf("failed to signal resume: %w", err)
	}

	if err := o.reg.UpdateStatus(ctx, id, registry.StatusActive); err != nil {
		return fmt.Errorf("failed to mark tenant active: %w", err)
	}
	o.ledger.SetStatus(id, registry.StatusActive)
	o.publishActiveCount()

	o.emit(ctx, EventTenantResumed, id, map[string]any{"tenant_id": id})
	o.audit(ctx, id, EventTenantResumed, "", "")

	logger.Info("Tenant resumed", logger.KeyTenant, id, logger.KeyContainer, handle.ID())
	return nil
}

// Restore rebuilds a tenant from durable state after a crash or restart.
//
// A fresh container is provisioned and the newest checkpoint, if one
// exists, is replayed into the state store. Replaying the same checkpoint
// twice converges on the same state. The budget spend is taken from the
// newer of the checkpoint and the registry mirror so spend is never lost.
func (o *Orchestrator) Restore(ctx context.Context, id string) (err error) {
	defer o.observe("restore", time.Now(), &err)
	ctx, span := telemetry.StartLifecycleSpan(ctx, "restore", id)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	tenant, err := o.reg.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if tenant.Status.Terminal() {
		return &InvalidTransitionError{TenantID: id, Current: string(tenant.Status), Requested: "restore"}
	}
	// An already-active tenant counts toward the cap itself, so the check
	// would block its own crash recovery.
	if tenant.Status != registry.StatusActive {
		if err := o.checkActiveCap(ctx); err != nil {
			return err
		}
	}
	registrySpent := tenant.BudgetSpent

	handle, err := o.runtime.RequestContainer(ctx, id, o.cfg.DefaultLimits)
	if err != nil {
		return fmt.Errorf("failed to request container: %w", err)
	}
	if err := handle.SetEnv(ctx, map[string]string{
		"TENANT_ID":       id,
		"TENANT_DEADLINE": tenant.Deadline.UTC().Format(time.RFC3339),
		"TENANT_BUDGET":   fmt.Sprintf("%g", tenant.Budget),
	}); err != nil {
		return fmt.Errorf("failed to set container env: %w", err)
	}
	if err := handle.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	if err := o.waitReady(ctx, id, handle); err != nil {
		return err
	}

	refs, err := o.checkpoints.List(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	spent := registrySpent
	if len(refs) > 0 {
		newest := refs[0]
		if err := o.checkpoints.Restore(ctx, id, newest); err != nil {
			return err
		}
		// The checkpoint service merged the snapshot spend with the
		// registry mirror in one write, keeping the larger; re-read for
		// the merged total.
		restored, err := o.reg.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		spent = restored.BudgetSpent
		if err := o.states.SendControl(ctx, id, state.ControlMessage{
			Type:    state.ControlRestoreState,
			Payload: map[string]any{"location": newest},
		}); err != nil {
			return fmt.Errorf("failed to signal state restore: %w", err)
		}
	} else {
		if err := o.states.SendControl(ctx, id, state.ControlMessage{Type: state.ControlStartMode}); err != nil {
			return fmt.Errorf("failed to signal work start: %w", err)
		}
	}

	if err := o.reg.UpdateStatus(ctx, id, registry.StatusActive); err != nil {
		return fmt.Errorf("failed to mark tenant active: %w", err)
	}
	o.ledger.Track(id, handle, registry.StatusActive, spent)
	o.publishActiveCount()

	o.emit(ctx, EventTenantRestored, id, map[string]any{"tenant_id": id})
	o.audit(ctx, id, EventTenantRestored, "", "")

	logger.Info("Tenant restored",
		logger.KeyTenant, id,
		logger.KeyContainer, handle.ID(),
		logger.KeySpent, spent,
		logger.KeyCount, len(refs))
	return nil
}

// archiveBundle is the final state exported alongside the workspace on
// archive.
type archiveBundle struct {
	TenantID    string                        `json:"tenant_id"`
	ArchivedAt  time.Time                     `json:"archived_at"`
	State       map[string]string             `json:"state"`
	Shared      json.RawMessage               `json:"shared,omitempty"`
	Queues      map[string][]state.QueueEntry `json:"queues"`
	BudgetSpent float64                       `json:"budget_spent"`
}

// Archive exports a tenant's final state and artifacts and retires it.
//
// Valid from any non-terminal status and idempotent on archived. Every
// failure before the final status write leaves the tenant in its prior
// status, so Archive is safe to retry.
func (o *Orchestrator) Archive(ctx context.Context, id string) (err error) {
	defer o.observe("archive", time.Now(), &err)
	ctx, span := telemetry.StartLifecycleSpan(ctx, "archive", id)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	tenant, err := o.reg.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if tenant.Status == registry.StatusArchived {
		return nil
	}
	if tenant.Status == registry.StatusDeleted {
		return &InvalidTransitionError{TenantID: id, Current: string(tenant.Status), Requested: "archive"}
	}

	spent := tenant.BudgetSpent
	if live, ok := o.ledger.Spent(id); ok {
		spent = live
	}

	bundle := archiveBundle{
		TenantID:    id,
		ArchivedAt:  o.now().UTC(),
		BudgetSpent: spent,
		Queues:      make(map[string][]state.QueueEntry, len(state.Queues)),
	}
	if bundle.State, err = o.states.State(ctx, id); err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if bundle.Shared, err = o.states.SharedBlob(ctx, id); err != nil {
		return fmt.Errorf("failed to read shared blob: %w", err)
	}
	for _, queue := range state.Queues {
		if bundle.Queues[queue], err = o.states.QueueEntries(ctx, id, queue); err != nil {
			return fmt.Errorf("failed to read queue %s: %w", queue, err)
		}
	}

	location := id + "/archive/"

	handle, hasContainer, err := o.handleFor(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up container: %w", err)
	}
	if hasContainer {
		// Exec needs a running container; a stopped one has no workspace
		// to export beyond what its checkpoints already hold.
		cstatus, err := handle.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to query container status: %w", err)
		}
		if cstatus == ContainerRunning {
			workspace, err := handle.Exec(ctx, []string{"tar", "-C", "/workspace", "-cf", "-", "."})
			if err != nil {
				return fmt.Errorf("failed to export workspace: %w", err)
			}
			if err := o.blobs.Put(ctx, location+"workspace.tar", workspace); err != nil {
				return fmt.Errorf("failed to upload workspace archive: %w", err)
			}
		}
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to encode archive bundle: %w", err)
	}
	if err := o.blobs.Put(ctx, location+"state.json", data); err != nil {
		return fmt.Errorf("failed to upload archive state: %w", err)
	}

	if hasContainer {
		if err := handle.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop container: %w", err)
		}
		if err := handle.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}
	}

	if err := o.states.DeleteTenant(ctx, id); err != nil {
		return fmt.Errorf("failed to clear transient state: %w", err)
	}

	// Status and location are written together: a crash cannot leave an
	// archived tenant without its bundle pointer.
	if err := o.reg.SetBudgetSpent(ctx, id, spent); err != nil {
		return fmt.Errorf("failed to persist final budget: %w", err)
	}
	if err := o.reg.SetArchiveLocation(ctx, id, location); err != nil {
		return fmt.Errorf("failed to mark tenant archived: %w", err)
	}
	o.ledger.Remove(id)
	o.publishActiveCount()

	o.emit(ctx, EventTenantArchived, id, map[string]any{"tenant_id": id, "location": location})
	o.audit(ctx, id, EventTenantArchived, "", location)

	logger.Info("Tenant archived",
		logger.KeyTenant, id,
		"location", location,
		logger.KeySpent, spent)
	return nil
}

// Delete soft-deletes a tenant from any status: the container is destroyed,
// transient keys are cleared, and the registry row is kept with deleted
// status. Idempotent on deleted.
func (o *Orchestrator) Delete(ctx context.Context, id string) (err error) {
	defer o.observe("delete", time.Now(), &err)
	ctx, span := telemetry.StartLifecycleSpan(ctx, "delete", id)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	tenant, err := o.reg.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if tenant.Status == registry.StatusDeleted {
		return nil
	}

	handle, ok, err := o.handleFor(ctx, id)
	if err != nil {
		logger.Warn("Failed to look up container during delete",
			logger.KeyTenant, id, logger.KeyError, err)
	} else if ok {
		if err := handle.Stop(ctx); err != nil {
			logger.Warn("Failed to stop container during delete",
				logger.KeyTenant, id, logger.KeyError, err)
		}
		if err := handle.Remove(ctx); err != nil {
			logger.Warn("Failed to remove container during delete",
				logger.KeyTenant, id, logger.KeyError, err)
		}
	}

	if err := o.states.DeleteTenant(ctx, id); err != nil {
		return fmt.Errorf("failed to clear transient state: %w", err)
	}
	if err := o.reg.UpdateStatus(ctx, id, registry.StatusDeleted); err != nil {
		return fmt.Errorf("failed to mark tenant deleted: %w", err)
	}
	o.ledger.Remove(id)
	o.publishActiveCount()

	o.emit(ctx, EventTenantDeleted, id, map[string]any{"tenant_id": id})
	o.audit(ctx, id, EventTenantDeleted, "", "")

	logger.Info("Tenant deleted", logger.KeyTenant, id)
	return nil
}

// PauseAll pauses every active tenant, attempting all of them. Per-tenant
// failures are collected into *PartialFailureError and never abort the
// batch.
func (o *Orchestrator) PauseAll(ctx context.Context) error {
	ids := o.ledger.ActiveTenantIDs()
	failures := make(map[string]error)

	for _, id := range ids {
		if err := o.Pause(ctx, id); err != nil {
			failures[id] = err
			logger.Error("Failed to pause tenant in batch",
				logger.KeyTenant, id, logger.KeyError, err)
		}
	}

	if len(failures) > 0 {
		return &PartialFailureError{Errors: failures}
	}
	return nil
}

// waitReady polls the container status with bounded retries until it
// reports running.
func (o *Orchestrator) waitReady(ctx context.Context, id string, handle Handle) error {
	start := time.Now()
	for attempt := 0; attempt < o.cfg.ReadinessRetries; attempt++ {
		status, err := handle.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to query container status: %w", err)
		}
		if status == ContainerRunning {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.ReadinessInterval):
		}
	}
	return &TimeoutError{TenantID: id, Op: "container readiness", Elapsed: time.Since(start)}
}
