package registry

import (
	"context"
)

// Store provides the tenant registry persistence interface.
//
// Thread safety: implementations must be safe for concurrent use from
// multiple goroutines.
type Store interface {
	// GetTenant returns a tenant by id, members preloaded.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// ListTenants returns tenants filtered by status. An empty filter
	// returns every tenant.
	ListTenants(ctx context.Context, statuses ...Status) ([]*Tenant, error)

	// CountTenants returns the number of tenants in the given statuses.
	CountTenants(ctx context.Context, statuses ...Status) (int64, error)

	// CreateTenant persists a new tenant row.
	// Returns ErrDuplicateTenant when the id is already taken.
	CreateTenant(ctx context.Context, tenant *Tenant) error

	// UpdateStatus moves the tenant to the given status.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// SetArchiveLocation records the archive bundle location alongside the
	// archived status; the two are written together so a crash cannot leave
	// an archived tenant without a pointer to its bundle.
	SetArchiveLocation(ctx context.Context, id, location string) error

	// SetBudgetSpent overwrites the mirrored spent total.
	// Spend is monotonic while a tenant is active; the orchestrator only
	// calls this with values >= the current mirror.
	SetBudgetSpent(ctx context.Context, id string, spent float64) error

	// AddMember adds a user to the tenant.
	// Returns ErrDuplicateMember for an existing membership.
	AddMember(ctx context.Context, member *TenantMember) (string, error)

	// RemoveMember removes a user from the tenant.
	// Returns ErrMemberNotFound if no such membership exists.
	RemoveMember(ctx context.Context, tenantID, user string) error

	// ListMembers returns all members of a tenant.
	ListMembers(ctx context.Context, tenantID string) ([]*TenantMember, error)

	// AppendAudit appends one event to the append-only log.
	AppendAudit(ctx context.Context, event *AuditEvent) error

	// ListAudit returns the newest events for a tenant, newest first.
	ListAudit(ctx context.Context, tenantID string, limit int) ([]*AuditEvent, error)

	// GetSubscriberContext returns the context blob for one subscriber on
	// one tenant. Returns ErrContextNotFound when never written.
	GetSubscriberContext(ctx context.Context, tenantID, subscriber string) (*SubscriberContext, error)

	// PutSubscriberContext creates or replaces the context blob.
	PutSubscriberContext(ctx context.Context, sc *SubscriberContext) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
