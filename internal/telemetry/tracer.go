package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for tenant platform operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Component-agnostic keys use "tenant." prefix, component-specific use their own prefix.
const (
	// ========================================================================
	// Tenant attributes (component-agnostic)
	// ========================================================================
	AttrTenantID     = "tenant.id"
	AttrTenantStatus = "tenant.status"
	AttrTenantOwner  = "tenant.owner"

	// ========================================================================
	// Lifecycle attributes
	// ========================================================================
	AttrOperation   = "lifecycle.operation" // create, pause, resume, restore, archive, delete
	AttrContainerID = "container.id"
	AttrBudget      = "budget.ceiling"
	AttrBudgetSpent = "budget.spent"

	// ========================================================================
	// Lock attributes
	// ========================================================================
	AttrLockPath   = "lock.path"
	AttrLockHolder = "lock.holder"
	AttrLockTTLMs  = "lock.ttl_ms"

	// ========================================================================
	// Checkpoint attributes
	// ========================================================================
	AttrCheckpoint = "checkpoint.location"

	// ========================================================================
	// Event router attributes
	// ========================================================================
	AttrEvent      = "event.name"
	AttrSubscriber = "subscriber.name"
	AttrTrigger    = "trigger.kind" // event, situational, probabilistic
	AttrEndpoint   = "subscriber.endpoint"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Lifecycle operations
	SpanLifecycleCreate  = "lifecycle.create"
	SpanLifecyclePause   = "lifecycle.pause"
	SpanLifecycleResume  = "lifecycle.resume"
	SpanLifecycleRestore = "lifecycle.restore"
	SpanLifecycleArchive = "lifecycle.archive"
	SpanLifecycleDelete  = "lifecycle.delete"

	// Lock service operations
	SpanLockAcquire = "lock.acquire"
	SpanLockRelease = "lock.release"
	SpanLockWait    = "lock.wait"

	// Checkpoint operations
	SpanCheckpointSave    = "checkpoint.save"
	SpanCheckpointRestore = "checkpoint.restore"
	SpanCheckpointSweep   = "checkpoint.sweep"

	// Event router operations
	SpanRouterDispatch = "router.dispatch"
	SpanRouterPoll     = "router.poll"

	// Blob storage operations
	SpanBlobPut    = "blob.put"
	SpanBlobGet    = "blob.get"
	SpanBlobList   = "blob.list"
	SpanBlobDelete = "blob.delete"
)

// TenantID returns an attribute for the tenant identifier
func TenantID(id string) attribute.KeyValue {
	return attribute.String(AttrTenantID, id)
}

// TenantStatus returns an attribute for the tenant lifecycle status
func TenantStatus(status string) attribute.KeyValue {
	return attribute.String(AttrTenantStatus, status)
}

// Operation returns an attribute for a lifecycle operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// ContainerID returns an attribute for the container identifier
func ContainerID(id string) attribute.KeyValue {
	return attribute.String(AttrContainerID, id)
}

// BudgetSpent returns an attribute for accumulated budget spend
func BudgetSpent(spent float64) attribute.KeyValue {
	return attribute.Float64(AttrBudgetSpent, spent)
}

// LockPath returns an attribute for a lock path
func LockPath(path string) attribute.KeyValue {
	return attribute.String(AttrLockPath, path)
}

// LockHolder returns an attribute for a lock holder identity
func LockHolder(holder string) attribute.KeyValue {
	return attribute.String(AttrLockHolder, holder)
}

// CheckpointLocation returns an attribute for a checkpoint blob location
func CheckpointLocation(location string) attribute.KeyValue {
	return attribute.String(AttrCheckpoint, location)
}

// EventName returns an attribute for a bus event name
func EventName(name string) attribute.KeyValue {
	return attribute.String(AttrEvent, name)
}

// Subscriber returns an attribute for a subscriber name
func Subscriber(name string) attribute.KeyValue {
	return attribute.String(AttrSubscriber, name)
}

// Trigger returns an attribute for the trigger kind that caused a dispatch
func Trigger(kind string) attribute.KeyValue {
	return attribute.String(AttrTrigger, kind)
}

// Bucket returns an attribute for an object storage bucket
func Bucket(bucket string) attribute.KeyValue {
	return attribute.String(AttrBucket, bucket)
}

// StorageKey returns an attribute for an object storage key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// StartLifecycleSpan starts a span for a lifecycle operation on a tenant.
// Additional attributes can be passed and will be set on the span.
func StartLifecycleSpan(ctx context.Context, op, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, Operation(op), TenantID(tenantID))
	all = append(all, attrs...)
	return StartSpan(ctx, fmt.Sprintf("lifecycle.%s", op), trace.WithAttributes(all...))
}

// StartLockSpan starts a span for a lock service operation.
func StartLockSpan(ctx context.Context, op, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, LockPath(path))
	all = append(all, attrs...)
	return StartSpan(ctx, fmt.Sprintf("lock.%s", op), trace.WithAttributes(all...))
}

// StartCheckpointSpan starts a span for a checkpoint operation on a tenant.
func StartCheckpointSpan(ctx context.Context, op, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, TenantID(tenantID))
	all = append(all, attrs...)
	return StartSpan(ctx, fmt.Sprintf("checkpoint.%s", op), trace.WithAttributes(all...))
}

// StartBlobSpan starts a span for a blob storage operation.
func StartBlobSpan(ctx context.Context, op, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, StorageKey(key))
	all = append(all, attrs...)
	return StartSpan(ctx, fmt.Sprintf("blob.%s", op), trace.WithAttributes(all...))
}

// StartDispatchSpan starts a span for a subscriber dispatch.
func StartDispatchSpan(ctx context.Context, subscriber, trigger string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, Subscriber(subscriber), Trigger(trigger))
	all = append(all, attrs...)
	return StartSpan(ctx, SpanRouterDispatch, trace.WithAttributes(all...))
}
