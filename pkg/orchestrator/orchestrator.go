// Package orchestrator owns the tenant lifecycle state machine.
//
// The orchestrator provisions a container per tenant, drives
// pause/resume/restore/archive transitions, enforces the global
// active-tenant cap, and keeps the per-tenant budget ledger continuous
// across pauses, restores, and process restarts.
//
// Lifecycle edges: initializing→active, active⇄paused, any
// non-terminal→archived, any→deleted (soft). Anything else fails with
// *InvalidTransitionError and leaves the status unchanged.
//
// The orchestrator does not serialize lifecycle calls for one tenant
// internally. Callers treat the tenant id as the natural lock key and issue
// one lifecycle call at a time per tenant; calls for different tenants may
// interleave freely.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/internal/telemetry"
	"github.com/mkarlsen/tenantd/pkg/blob"
	"github.com/mkarlsen/tenantd/pkg/checkpoint"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// Bus event names emitted by the orchestrator.
const (
	EventTenantCreated  = "tenant:created"
	EventTenantPaused   = "tenant:paused"
	EventTenantResumed  = "tenant:resumed"
	EventTenantRestored = "tenant:restored"
	EventTenantArchived = "tenant:archived"
	EventTenantDeleted  = "tenant:deleted"
)

// Metrics provides observability for lifecycle operations. Pass nil to
// disable collection.
type Metrics interface {
	ObserveOperation(op string, d time.Duration, err error)
	SetActiveTenants(n int)
}

// Config holds orchestrator tunables.
type Config struct {
	// MaxActiveTenants is the global concurrency cap, counted against the
	// registry so it holds across processes. Create and resume reject with
	// ErrResourceExhausted at the cap.
	MaxActiveTenants int `mapstructure:"max_active_tenants" yaml:"max_active_tenants"`

	// MinBudget is the smallest accepted budget ceiling.
	MinBudget float64 `mapstructure:"min_budget" yaml:"min_budget"`

	// FlushTimeout bounds the wait for a worker's state-flush ack on pause.
	FlushTimeout time.Duration `mapstructure:"flush_timeout" yaml:"flush_timeout"`

	// ReadinessRetries and ReadinessInterval bound the container readiness
	// poll on resume and restore.
	ReadinessRetries  int           `mapstructure:"readiness_retries" yaml:"readiness_retries"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval" yaml:"readiness_interval"`

	// DefaultLimits apply to containers created without explicit limits.
	DefaultLimits Limits `mapstructure:"default_limits" yaml:"default_limits"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxActiveTenants == 0 {
		c.MaxActiveTenants = 10
	}
	if c.MinBudget == 0 {
		c.MinBudget = 1
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = 30 * time.Second
	}
	if c.ReadinessRetries == 0 {
		c.ReadinessRetries = 30
	}
	if c.ReadinessInterval == 0 {
		c.ReadinessInterval = time.Second
	}
	if c.DefaultLimits.CPUs == 0 {
		c.DefaultLimits.CPUs = 2
	}
	if c.DefaultLimits.MemoryMB == 0 {
		c.DefaultLimits.MemoryMB = 4096
	}
}

// Orchestrator drives the tenant lifecycle.
type Orchestrator struct {
	cfg         Config
	reg         registry.Store
	states      state.Store
	blobs       blob.Store
	checkpoints *checkpoint.Service
	runtime     ContainerRuntime
	ledger      *Ledger
	metrics     Metrics
	now         func() time.Time
}

// New creates an orchestrator. The ledger is owned by the caller so the
// checkpoint sweeper can share it; metrics may be nil.
func New(
	cfg Config,
	reg registry.Store,
	states state.Store,
	blobs blob.Store,
	checkpoints *checkpoint.Service,
	runtime ContainerRuntime,
	ledger *Ledger,
	metrics Metrics,
) *Orchestrator {
	cfg.ApplyDefaults()
	return &Orchestrator{
		cfg:         cfg,
		reg:         reg,
		states:      states,
		blobs:       blobs,
		checkpoints: checkpoints,
		runtime:     runtime,
		ledger:      ledger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Ledger exposes the active-tenant ledger, for wiring the checkpoint
// sweeper and the situational poller.
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	Name     string
	Deadline time.Time
	Budget   float64
	Owner    string
	Members  []string
	Config   map[string]any
	Limits   *Limits
}

// Create provisions a new tenant: registry row, container, initial state,
// work-start signal, then the initializing→active transition.
//
// Validation and the cap check happen before anything is persisted, so a
// rejected Create leaves no trace.
func (o *Orchestrator) Create(ctx context.Context, params CreateParams) (tenant *registry.Tenant, err error) {
	defer o.observe("create", time.Now(), &err)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanLifecycleCreate)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	if err := o.validateCreate(params); err != nil {
		return nil, err
	}
	if err := o.checkActiveCap(ctx); err != nil {
		return nil, err
	}

	id := newTenantID(params.Name, o.now())
	telemetry.SetAttributes(ctx, telemetry.TenantID(id))
	tenant = &registry.Tenant{
		ID:       id,
		Name:     params.Name,
		Deadline: params.Deadline,
		Budget:   params.Budget,
		Status:   registry.StatusInitializing,
		Owner:    params.Owner,
	}
	if params.Config != nil {
		if err := tenant.SetConfig(params.Config); err != nil {
			return nil, &ValidationError{Field: "config", Reason: err.Error()}
		}
	}
	if err := o.reg.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to persist tenant: %w", err)
	}
	for _, member := range params.Members {
		if _, err := o.reg.AddMember(ctx, &registry.TenantMember{TenantID: id, User: member}); err != nil {
			return nil, fmt.Errorf("failed to add member %s: %w", member, err)
		}
	}

	limits := o.cfg.DefaultLimits
	if params.Limits != nil {
		limits = *params.Limits
	}
	handle, err := o.runtime.RequestContainer(ctx, id, limits)
	if err != nil {
		return nil, fmt.Errorf("failed to request container: %w", err)
	}
	if err := handle.SetEnv(ctx, map[string]string{
		"TENANT_ID":       id,
		"TENANT_DEADLINE": params.Deadline.UTC().Format(time.RFC3339),
		"TENANT_BUDGET":   fmt.Sprintf("%g", params.Budget),
	}); err != nil {
		return nil, fmt.Errorf("failed to set container env: %w", err)
	}
	if err := handle.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	if err := o.states.SetStateFields(ctx, id, map[string]string{
		"phase":        "init",
		"budget_spent": "0",
		"created_at":   o.now().UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("failed to seed state: %w", err)
	}
	if err := o.states.SendControl(ctx, id, state.ControlMessage{Type: state.ControlStartMode}); err != nil {
		return nil, fmt.Errorf("failed to signal work start: %w", err)
	}

	if err := o.reg.UpdateStatus(ctx, id, registry.StatusActive); err != nil {
		return nil, fmt.Errorf("failed to activate tenant: %w", err)
	}
	tenant.Status = registry.StatusActive
	o.ledger.Track(id, handle, registry.StatusActive, 0)
	o.publishActiveCount()

	o.emit(ctx, EventTenantCreated, id, map[string]any{"tenant_id": id, "name": params.Name})
	o.audit(ctx, id, EventTenantCreated, params.Owner, "")

	logger.Info("Tenant created",
		logger.KeyTenant, id,
		logger.KeyStatus, string(registry.StatusActive),
		logger.KeyContainer, handle.ID(),
		logger.KeyBudget, params.Budget)
	return tenant, nil
}

func (o *Orchestrator) validateCreate(params CreateParams) error {
	if strings.TrimSpace(params.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !params.Deadline.After(o.now()) {
		return &ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	if params.Budget < o.cfg.MinBudget {
		return &ValidationError{Field: "budget", Reason: fmt.Sprintf("must be at least %g", o.cfg.MinBudget)}
	}
	if strings.TrimSpace(params.Owner) == "" {
		return &ValidationError{Field: "owner", Reason: "must not be empty"}
	}
	return nil
}

// checkActiveCap rejects with ErrResourceExhausted when the number of
// active tenants has reached the cap. The count comes from the registry,
// not the in-process ledger, so the cap holds across every process sharing
// the registry and across restarts.
func (o *Orchestrator) checkActiveCap(ctx context.Context) error {
	active, err := o.reg.CountTenants(ctx, registry.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to count active tenants: %w", err)
	}
	if int(active) >= o.cfg.MaxActiveTenants {
		return fmt.Errorf("%w: cap %d", ErrResourceExhausted, o.cfg.MaxActiveTenants)
	}
	return nil
}

// AdoptActive seeds the ledger with every tenant the registry records as
// active, reattaching containers by name where they still exist. A fresh
// process calls this before starting its background workers so sweeping,
// situational polling, and shutdown pause cover tenants created by an
// earlier process.
func (o *Orchestrator) AdoptActive(ctx context.Context) error {
	tenants, err := o.reg.ListTenants(ctx, registry.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to list active tenants: %w", err)
	}

	for _, tenant := range tenants {
		if _, ok := o.ledger.Status(tenant.ID); ok {
			continue
		}
		var handle Handle
		if h, ok, err := o.runtime.LookupContainer(ctx, tenant.ID); err != nil {
			logger.Warn("Failed to look up container for adopted tenant",
				logger.KeyTenant, tenant.ID, logger.KeyError, err)
		} else if ok {
			handle = h
		}
		o.ledger.Track(tenant.ID, handle, registry.StatusActive, tenant.BudgetSpent)
		logger.Info("Adopted active tenant",
			logger.KeyTenant, tenant.ID,
			logger.KeySpent, tenant.BudgetSpent)
	}

	o.publishActiveCount()
	return nil
}

// newTenantID builds a unique tenant id from the slugified name and a
// creation-time suffix.
func newTenantID(name string, now time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '_', r == '-':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return fmt.Sprintf("%s-%d", slug, now.Unix())
}

// currentStatus prefers the live ledger view, falling back to the registry.
func (o *Orchestrator) currentStatus(ctx context.Context, id string) (registry.Status, error) {
	if status, ok := o.ledger.Status(id); ok {
		return status, nil
	}
	tenant, err := o.reg.GetTenant(ctx, id)
	if err != nil {
		return "", err
	}
	return tenant.Status, nil
}

// observe records an operation metric. Used via defer with the named err.
func (o *Orchestrator) observe(op string, start time.Time, err *error) {
	if o.metrics != nil {
		o.metrics.ObserveOperation(op, time.Since(start), *err)
	}
}

func (o *Orchestrator) publishActiveCount() {
	if o.metrics != nil {
		o.metrics.SetActiveTenants(o.ledger.ActiveCount())
	}
}

// emit publishes a bus event. Observability failures are logged, never
// surfaced to the lifecycle caller.
func (o *Orchestrator) emit(ctx context.Context, event, tenantID string, payload map[string]any) {
	if err := o.states.PublishEvent(ctx, event, payload); err != nil {
		logger.Warn("Failed to publish event",
			logger.KeyEvent, event,
			logger.KeyTenant, tenantID,
			logger.KeyError, err)
	}
}

// audit appends one registry audit row, best effort.
func (o *Orchestrator) audit(ctx context.Context, tenantID, kind, actor, detail string) {
	err := o.reg.AppendAudit(ctx, &registry.AuditEvent{
		TenantID: tenantID,
		Kind:     kind,
		Actor:    actor,
		Detail:   detail,
	})
	if err != nil {
		logger.Warn("Failed to append audit event",
			logger.KeyTenant, tenantID,
			logger.KeyEvent, kind,
			logger.KeyError, err)
	}
}
