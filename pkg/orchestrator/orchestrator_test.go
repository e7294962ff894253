package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkarlsen/tenantd/pkg/blob"
	"github.com/mkarlsen/tenantd/pkg/checkpoint"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// fakeHandle is an in-memory container handle recording every call.
type fakeHandle struct {
	mu       sync.Mutex
	id       string
	status   ContainerStatus
	env      map[string]string
	starts   int
	stops    int
	removals int
	execs    [][]string
	execOut  []byte
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	h.status = ContainerRunning
	return nil
}

func (h *fakeHandle) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.status = ContainerStopped
	return nil
}

func (h *fakeHandle) Remove(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removals++
	h.status = ContainerGone
	return nil
}

func (h *fakeHandle) Exec(_ context.Context, argv []string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs = append(h.execs, argv)
	return h.execOut, nil
}

func (h *fakeHandle) Status(context.Context) (ContainerStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, nil
}

func (h *fakeHandle) SetEnv(_ context.Context, env map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.env = env
	return nil
}

func (h *fakeHandle) currentStatus() ContainerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

type fakeRuntime struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	byTenant map[string]*fakeHandle
}

func (r *fakeRuntime) RequestContainer(_ context.Context, tenantID string, _ Limits) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &fakeHandle{
		id:      fmt.Sprintf("ctr-%s-%d", tenantID, len(r.handles)),
		status:  ContainerCreated,
		execOut: []byte("workspace-tarball"),
	}
	r.handles = append(r.handles, h)
	if r.byTenant == nil {
		r.byTenant = make(map[string]*fakeHandle)
	}
	r.byTenant[tenantID] = h
	return h, nil
}

func (r *fakeRuntime) LookupContainer(_ context.Context, tenantID string) (Handle, bool, error) {
	r.mu.Lock()
	h, ok := r.byTenant[tenantID]
	r.mu.Unlock()
	if !ok || h.currentStatus() == ContainerGone {
		return nil, false, nil
	}
	return h, true, nil
}

func (r *fakeRuntime) requested() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

type testEnv struct {
	reg     *registry.MemoryStore
	states  *state.MemoryStore
	blobs   *blob.MemoryStore
	runtime *fakeRuntime
	orch    *Orchestrator
}

func testConfig() Config {
	return Config{
		MaxActiveTenants:  2,
		MinBudget:         1,
		FlushTimeout:      200 * time.Millisecond,
		ReadinessRetries:  5,
		ReadinessInterval: 2 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		reg:     registry.NewMemoryStore(),
		states:  state.NewMemoryStore(),
		blobs:   blob.NewMemoryStore(),
		runtime: &fakeRuntime{},
	}
	checkpoints := checkpoint.NewService(env.states, env.blobs, env.reg, 5, nil)
	env.orch = New(testConfig(), env.reg, env.states, env.blobs, checkpoints, env.runtime, NewLedger(), nil)
	return env
}

// autoAck simulates a worker that acknowledges every flush request.
func (env *testEnv) autoAck(t *testing.T, tenantID string) {
	t.Helper()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Millisecond):
				env.states.Ack(tenantID, state.ControlMessage{Type: "state_saved"})
			}
		}
	}()
	t.Cleanup(func() { close(stop) })
}

// secondOrchestrator builds an orchestrator over the same durable stores
// and container runtime with its own empty ledger, the way a second
// process (or a restarted one) comes up.
func (env *testEnv) secondOrchestrator() *Orchestrator {
	checkpoints := checkpoint.NewService(env.states, env.blobs, env.reg, 5, nil)
	return New(testConfig(), env.reg, env.states, env.blobs, checkpoints, env.runtime, NewLedger(), nil)
}

func (env *testEnv) create(t *testing.T, name string) *registry.Tenant {
	t.Helper()
	tenant, err := env.orch.Create(context.Background(), CreateParams{
		Name:     name,
		Deadline: time.Now().Add(48 * time.Hour),
		Budget:   50,
		Owner:    "demo-owner",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return tenant
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	stream, err := env.states.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer stream.Close()

	tenant := env.create(t, "demo")

	if tenant.Status != registry.StatusActive {
		t.Errorf("expected active status, got %s", tenant.Status)
	}
	if !strings.HasPrefix(tenant.ID, "demo-") {
		t.Errorf("expected slugged id, got %q", tenant.ID)
	}

	stored, err := env.reg.GetTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("tenant not persisted: %v", err)
	}
	if stored.Status != registry.StatusActive {
		t.Errorf("persisted status is %s", stored.Status)
	}

	if got := env.orch.Ledger().ActiveCount(); got != 1 {
		t.Errorf("expected 1 active tenant, got %d", got)
	}

	handle := env.runtime.handles[0]
	if handle.currentStatus() != ContainerRunning {
		t.Errorf("container not running: %s", handle.currentStatus())
	}
	if handle.env["TENANT_ID"] != tenant.ID {
		t.Errorf("container env missing tenant id: %+v", handle.env)
	}

	msgs := env.states.ControlMessages(tenant.ID)
	if len(msgs) != 1 || msgs[0].Type != state.ControlStartMode {
		t.Errorf("expected work-start signal, got %+v", msgs)
	}

	select {
	case e := <-stream.Events():
		if e.Name != EventTenantCreated {
			t.Errorf("expected %s event, got %s", EventTenantCreated, e.Name)
		}
	case <-time.After(time.Second):
		t.Error("no creation event on the bus")
	}

	audit, _ := env.reg.ListAudit(ctx, tenant.ID, 10)
	if len(audit) != 1 || audit[0].Kind != EventTenantCreated {
		t.Errorf("expected creation audit row, got %+v", audit)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	valid := CreateParams{
		Name:     "demo",
		Deadline: time.Now().Add(time.Hour),
		Budget:   50,
		Owner:    "owner",
	}

	cases := []struct {
		name   string
		mutate func(*CreateParams)
		field  string
	}{
		{"empty name", func(p *CreateParams) { p.Name = "  " }, "name"},
		{"past deadline", func(p *CreateParams) { p.Deadline = time.Now().Add(-time.Hour) }, "deadline"},
		{"budget below minimum", func(p *CreateParams) { p.Budget = 0.5 }, "budget"},
		{"missing owner", func(p *CreateParams) { p.Owner = "" }, "owner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.mutate(&params)

			_, err := env.orch.Create(ctx, params)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}

	if env.runtime.requested() != 0 {
		t.Error("rejected create must not touch the container runtime")
	}
}

func TestCreateAtCap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.create(t, "first")
	env.create(t, "second")

	_, err := env.orch.Create(ctx, CreateParams{
		Name:     "third",
		Deadline: time.Now().Add(time.Hour),
		Budget:   50,
		Owner:    "owner",
	})
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}

	count, _ := env.reg.CountTenants(ctx)
	if count != 2 {
		t.Errorf("rejected create touched the registry: %d rows", count)
	}
	if env.runtime.requested() != 2 {
		t.Errorf("rejected create touched the runtime: %d containers", env.runtime.requested())
	}
}

func TestCreateCapHoldsAcrossOrchestrators(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.create(t, "first")
	env.create(t, "second")

	// A fresh process with an empty ledger shares the same registry; the
	// cap must still hold for it.
	orch2 := env.secondOrchestrator()
	_, err := orch2.Create(ctx, CreateParams{
		Name:     "third",
		Deadline: time.Now().Add(time.Hour),
		Budget:   50,
		Owner:    "owner",
	})
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}

	active, _ := env.reg.CountTenants(ctx, registry.StatusActive)
	if active != 2 {
		t.Errorf("cap breached: %d active tenants", active)
	}
}

func TestResumeAtCap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	first := env.create(t, "first")
	env.create(t, "second")
	env.autoAck(t, first.ID)

	if err := env.orch.Pause(ctx, first.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	env.create(t, "third") // fills the freed slot

	err := env.orch.Resume(ctx, first.ID)
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}
	status, _ := env.orch.Status(ctx, first.ID)
	if status != registry.StatusPaused {
		t.Errorf("rejected resume changed status: %s", status)
	}
}

func TestPauseResumeReusesLiveHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)

	if err := env.orch.Pause(ctx, tenant.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	status, _ := env.orch.Status(ctx, tenant.ID)
	if status != registry.StatusPaused {
		t.Errorf("expected paused, got %s", status)
	}
	handle := env.runtime.handles[0]
	if handle.currentStatus() != ContainerStopped {
		t.Errorf("container should be stopped, is %s", handle.currentStatus())
	}
	if handle.removals != 0 {
		t.Error("pause must not remove the container")
	}

	refs, _ := env.states.CheckpointRefs(ctx, tenant.ID)
	if len(refs) != 1 {
		t.Errorf("expected on-demand checkpoint before pause, refs=%v", refs)
	}

	if err := env.orch.Resume(ctx, tenant.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	status, _ = env.orch.Status(ctx, tenant.ID)
	if status != registry.StatusActive {
		t.Errorf("expected active, got %s", status)
	}
	if env.runtime.requested() != 1 {
		t.Errorf("resume with a live handle must not request a new container, got %d", env.runtime.requested())
	}
	if handle.currentStatus() != ContainerRunning {
		t.Errorf("container should be running, is %s", handle.currentStatus())
	}
}

func TestPauseFlushTimeout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")

	// No worker acks.
	err := env.orch.Pause(ctx, tenant.ID)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("flush timeout must be retryable")
	}

	status, _ := env.orch.Status(ctx, tenant.ID)
	if status != registry.StatusActive {
		t.Errorf("timed-out pause must leave status unchanged, got %s", status)
	}
	if env.runtime.handles[0].currentStatus() != ContainerRunning {
		t.Error("timed-out pause must leave the container running")
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)

	t.Run("resume active", func(t *testing.T) {
		err := env.orch.Resume(ctx, tenant.ID)
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("expected *InvalidTransitionError, got %v", err)
		}
		if inv.Current != string(registry.StatusActive) || inv.Requested != "resume" {
			t.Errorf("unexpected detail: %+v", inv)
		}
	})

	t.Run("pause paused", func(t *testing.T) {
		if err := env.orch.Pause(ctx, tenant.ID); err != nil {
			t.Fatalf("setup pause failed: %v", err)
		}
		err := env.orch.Pause(ctx, tenant.ID)
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("expected *InvalidTransitionError, got %v", err)
		}
		status, _ := env.orch.Status(ctx, tenant.ID)
		if status != registry.StatusPaused {
			t.Errorf("status changed by invalid transition: %s", status)
		}
	})

	t.Run("restore archived", func(t *testing.T) {
		archived := env.create(t, "archived-one")
		if err := env.orch.Archive(ctx, archived.ID); err != nil {
			t.Fatalf("archive failed: %v", err)
		}
		err := env.orch.Restore(ctx, archived.ID)
		var inv *InvalidTransitionError
		if !errors.As(err, &inv) {
			t.Fatalf("expected *InvalidTransitionError, got %v", err)
		}
	})
}

func TestBudgetContinuityAcrossPauseResume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)

	if err := env.orch.RecordSpend(ctx, tenant.ID, 7.5); err != nil {
		t.Fatalf("record spend failed: %v", err)
	}
	if err := env.orch.RecordSpend(ctx, tenant.ID, 2.5); err != nil {
		t.Fatalf("record spend failed: %v", err)
	}

	before, _ := env.orch.Budget(ctx, tenant.ID)
	if before.Spent != 10 {
		t.Fatalf("expected spent 10, got %v", before.Spent)
	}

	if err := env.orch.Pause(ctx, tenant.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := env.orch.Resume(ctx, tenant.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	after, _ := env.orch.Budget(ctx, tenant.ID)
	if after.Spent != before.Spent {
		t.Errorf("spend lost across pause/resume: before %v after %v", before.Spent, after.Spent)
	}
	if after.Remaining() != 40 {
		t.Errorf("expected 40 remaining, got %v", after.Remaining())
	}
}

func TestResumeAfterRestartDelegatesToRestore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)

	if err := env.orch.RecordSpend(ctx, tenant.ID, 12.5); err != nil {
		t.Fatalf("record spend failed: %v", err)
	}
	if err := env.orch.Pause(ctx, tenant.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	// Simulate an orchestrator restart: same durable stores, fresh ledger
	// and runtime, so no live handle survives.
	runtime2 := &fakeRuntime{}
	checkpoints := checkpoint.NewService(env.states, env.blobs, env.reg, 5, nil)
	orch2 := New(testConfig(), env.reg, env.states, env.blobs, checkpoints, runtime2, NewLedger(), nil)

	if err := orch2.Resume(ctx, tenant.ID); err != nil {
		t.Fatalf("resume after restart failed: %v", err)
	}

	if runtime2.requested() != 1 {
		t.Errorf("restore should have provisioned a fresh container, got %d", runtime2.requested())
	}
	status, _ := orch2.Status(ctx, tenant.ID)
	if status != registry.StatusActive {
		t.Errorf("expected active, got %s", status)
	}

	budget, err := orch2.Budget(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("budget read failed: %v", err)
	}
	if budget.Spent != 12.5 {
		t.Errorf("spend lost across restart: %v", budget.Spent)
	}

	// The worker was told to restore from the checkpoint.
	var sawRestore bool
	for _, msg := range env.states.ControlMessages(tenant.ID) {
		if msg.Type == state.ControlRestoreState {
			sawRestore = true
		}
	}
	if !sawRestore {
		t.Error("expected restore_state control message")
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)

	env.orch.RecordSpend(ctx, tenant.ID, 5)
	env.states.PushQueue(ctx, tenant.ID, state.QueuePending,
		state.QueueEntry{Path: "docs/a.md", Priority: 1, Status: "pending"})

	if err := env.orch.Pause(ctx, tenant.ID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	if err := env.orch.Restore(ctx, tenant.ID); err != nil {
		t.Fatalf("first restore failed: %v", err)
	}
	stateOnce, _ := env.states.State(ctx, tenant.ID)
	queueOnce, _ := env.states.QueueEntries(ctx, tenant.ID, state.QueuePending)

	// Forcing a second restore must converge on the same state.
	env.orch.Ledger().SetStatus(tenant.ID, registry.StatusPaused)
	if err := env.orch.Restore(ctx, tenant.ID); err != nil {
		t.Fatalf("second restore failed: %v", err)
	}
	stateTwice, _ := env.states.State(ctx, tenant.ID)
	queueTwice, _ := env.states.QueueEntries(ctx, tenant.ID, state.QueuePending)

	if len(stateOnce) != len(stateTwice) {
		t.Errorf("state diverged: %+v vs %+v", stateOnce, stateTwice)
	}
	for k, v := range stateOnce {
		if stateTwice[k] != v {
			t.Errorf("state field %s diverged: %q vs %q", k, v, stateTwice[k])
		}
	}
	if len(queueOnce) != 1 || len(queueTwice) != 1 || queueOnce[0] != queueTwice[0] {
		t.Errorf("queue diverged: %+v vs %+v", queueOnce, queueTwice)
	}

	budget, _ := env.orch.Budget(ctx, tenant.ID)
	if budget.Spent != 5 {
		t.Errorf("spend diverged after double restore: %v", budget.Spent)
	}
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)
	env.orch.RecordSpend(ctx, tenant.ID, 3)

	if err := env.orch.Archive(ctx, tenant.ID); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	stored, _ := env.reg.GetTenant(ctx, tenant.ID)
	if stored.Status != registry.StatusArchived {
		t.Errorf("expected archived, got %s", stored.Status)
	}
	if stored.ArchiveLocation == "" {
		t.Error("archive location not recorded")
	}
	if stored.BudgetSpent != 3 {
		t.Errorf("final budget not persisted: %v", stored.BudgetSpent)
	}

	stateJSON, err := env.blobs.Get(ctx, tenant.ID+"/archive/state.json")
	if err != nil {
		t.Fatalf("archive state bundle missing: %v", err)
	}
	if !strings.Contains(string(stateJSON), tenant.ID) {
		t.Error("archive bundle does not name the tenant")
	}
	if _, err := env.blobs.Get(ctx, tenant.ID+"/archive/workspace.tar"); err != nil {
		t.Fatalf("workspace archive missing: %v", err)
	}

	handle := env.runtime.handles[0]
	if handle.currentStatus() != ContainerGone {
		t.Errorf("container should be removed, is %s", handle.currentStatus())
	}

	fields, _ := env.states.State(ctx, tenant.ID)
	if len(fields) != 0 {
		t.Errorf("transient state not cleared: %+v", fields)
	}
	if env.orch.Ledger().ActiveCount() != 0 {
		t.Error("archived tenant still in the ledger")
	}

	// Idempotent on the terminal state.
	if err := env.orch.Archive(ctx, tenant.ID); err != nil {
		t.Errorf("second archive should be a no-op, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")

	if err := env.orch.Delete(ctx, tenant.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	stored, _ := env.reg.GetTenant(ctx, tenant.ID)
	if stored.Status != registry.StatusDeleted {
		t.Errorf("expected deleted, got %s", stored.Status)
	}
	if env.runtime.handles[0].currentStatus() != ContainerGone {
		t.Error("container should be removed")
	}

	// Idempotent, and delete is reachable from the terminal state.
	if err := env.orch.Delete(ctx, tenant.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestPauseAllCollectsFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	good := env.create(t, "good")
	bad := env.create(t, "bad")
	env.autoAck(t, good.ID) // bad's worker never acks

	err := env.orch.PauseAll(ctx)
	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialFailureError, got %v", err)
	}
	if len(partial.Errors) != 1 {
		t.Fatalf("expected exactly one failure, got %+v", partial.Errors)
	}
	if _, ok := partial.Errors[bad.ID]; !ok {
		t.Errorf("expected failure for %s, got %+v", bad.ID, partial.Errors)
	}

	goodStatus, _ := env.orch.Status(ctx, good.ID)
	if goodStatus != registry.StatusPaused {
		t.Errorf("healthy tenant not paused: %s", goodStatus)
	}
	badStatus, _ := env.orch.Status(ctx, bad.ID)
	if badStatus != registry.StatusActive {
		t.Errorf("failed tenant should keep prior status: %s", badStatus)
	}
}

func TestRecordSpendValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")

	err := env.orch.RecordSpend(ctx, tenant.ID, -1)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	err = env.orch.RecordSpend(ctx, "untracked-tenant", 1)
	if err == nil {
		t.Fatal("expected error for untracked tenant")
	}
}

func TestStatusFallsBackToRegistry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if err := env.reg.CreateTenant(ctx, &registry.Tenant{
		ID:     "cold-tenant",
		Name:   "cold",
		Budget: 10,
		Status: registry.StatusPaused,
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	status, err := env.orch.Status(ctx, "cold-tenant")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status != registry.StatusPaused {
		t.Errorf("expected registry fallback, got %s", status)
	}

	_, err = env.orch.Status(ctx, "never-existed")
	if !errors.Is(err, registry.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestPauseFromSecondOrchestratorStopsContainer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")
	env.autoAck(t, tenant.ID)

	// A second process has no ledger entry for the tenant; the container
	// is found through the runtime by its stable name.
	orch2 := env.secondOrchestrator()
	if err := orch2.Pause(ctx, tenant.ID); err != nil {
		t.Fatalf("pause from second orchestrator failed: %v", err)
	}

	if got := env.runtime.handles[0].currentStatus(); got != ContainerStopped {
		t.Errorf("container should be stopped, is %s", got)
	}
	stored, _ := env.reg.GetTenant(ctx, tenant.ID)
	if stored.Status != registry.StatusPaused {
		t.Errorf("expected paused, got %s", stored.Status)
	}
}

func TestArchiveFromSecondOrchestratorRemovesContainer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")

	orch2 := env.secondOrchestrator()
	if err := orch2.Archive(ctx, tenant.ID); err != nil {
		t.Fatalf("archive from second orchestrator failed: %v", err)
	}

	if got := env.runtime.handles[0].currentStatus(); got != ContainerGone {
		t.Errorf("container should be removed, is %s", got)
	}
	if _, err := env.blobs.Get(ctx, tenant.ID+"/archive/workspace.tar"); err != nil {
		t.Errorf("workspace archive missing: %v", err)
	}
	stored, _ := env.reg.GetTenant(ctx, tenant.ID)
	if stored.Status != registry.StatusArchived {
		t.Errorf("expected archived, got %s", stored.Status)
	}
}

func TestDeleteFromSecondOrchestratorRemovesContainer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := env.create(t, "demo")

	orch2 := env.secondOrchestrator()
	if err := orch2.Delete(ctx, tenant.ID); err != nil {
		t.Fatalf("delete from second orchestrator failed: %v", err)
	}

	if got := env.runtime.handles[0].currentStatus(); got != ContainerGone {
		t.Errorf("container should be removed, is %s", got)
	}
	stored, _ := env.reg.GetTenant(ctx, tenant.ID)
	if stored.Status != registry.StatusDeleted {
		t.Errorf("expected deleted, got %s", stored.Status)
	}
}

func TestAdoptActiveAfterRestart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alpha := env.create(t, "alpha")
	beta := env.create(t, "beta")
	if err := env.orch.RecordSpend(ctx, alpha.ID, 4); err != nil {
		t.Fatalf("record spend failed: %v", err)
	}

	orch2 := env.secondOrchestrator()
	if got := orch2.Ledger().ActiveTenantIDs(); len(got) != 0 {
		t.Fatalf("fresh ledger should be empty, got %v", got)
	}

	if err := orch2.AdoptActive(ctx); err != nil {
		t.Fatalf("adopt failed: %v", err)
	}

	ids := orch2.Ledger().ActiveTenantIDs()
	if len(ids) != 2 {
		t.Fatalf("expected both actives adopted, got %v", ids)
	}
	if spent, ok := orch2.Ledger().Spent(alpha.ID); !ok || spent != 4 {
		t.Errorf("adopted spend wrong: %v %v", spent, ok)
	}

	// Shutdown pause from the adopting process now covers both tenants.
	env.autoAck(t, alpha.ID)
	env.autoAck(t, beta.ID)
	if err := orch2.PauseAll(ctx); err != nil {
		t.Fatalf("pause all after adopt failed: %v", err)
	}
	for i, h := range env.runtime.handles {
		if h.currentStatus() != ContainerStopped {
			t.Errorf("container %d not stopped after adopt+pause: %s", i, h.currentStatus())
		}
	}
}

func TestNewTenantID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	id := newTenantID("My Demo_Project!", now)
	if id != "my-demo-project-1700000000" {
		t.Errorf("unexpected id %q", id)
	}
}
