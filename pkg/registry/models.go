// Package registry provides the durable tenant registry.
//
// The registry is the system of record for tenant metadata, membership, and
// the append-only audit log. Runtime state (state hash, work queues, budget
// mirror) lives in the shared state store; the registry is what survives a
// full wipe of transient storage.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL (HA-capable)
package registry

import (
	"encoding/json"
	"time"
)

// Status is a tenant lifecycle status as persisted in the registry.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusArchived     Status = "archived"
	StatusDeleted      Status = "deleted"
)

// Terminal reports whether the status admits no further lifecycle work.
// Archived tenants remain readable; deleted tenants are soft-deleted rows.
func (s Status) Terminal() bool {
	return s == StatusArchived || s == StatusDeleted
}

// Tenant is one workload run: a named, deadline-bounded, budget-capped unit
// of isolated work backed by its own container.
type Tenant struct {
	ID              string    `gorm:"primaryKey;size:128" json:"id"`
	Name            string    `gorm:"not null;size:255" json:"name"`
	Deadline        time.Time `gorm:"not null" json:"deadline"`
	Budget          float64   `gorm:"not null" json:"budget"`
	BudgetSpent     float64   `gorm:"default:0" json:"budget_spent"`
	Status          Status    `gorm:"not null;size:32;index" json:"status"`
	Owner           string    `gorm:"not null;size:255" json:"owner"`
	ArchiveLocation string    `gorm:"size:512" json:"archive_location,omitempty"`
	Config          string    `gorm:"type:text" json:"-"` // JSON blob for tenant configuration
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Members []TenantMember `gorm:"foreignKey:TenantID" json:"members,omitempty"`

	// Parsed configuration (not stored in DB)
	ParsedConfig map[string]any `gorm:"-" json:"config,omitempty"`
}

// TableName returns the table name for Tenant.
func (Tenant) TableName() string {
	return "tenants"
}

// GetConfig returns the parsed configuration blob.
func (t *Tenant) GetConfig() (map[string]any, error) {
	if t.ParsedConfig != nil {
		return t.ParsedConfig, nil
	}
	if t.Config == "" {
		return make(map[string]any), nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(t.Config), &cfg); err != nil {
		return nil, err
	}
	t.ParsedConfig = cfg
	return cfg, nil
}

// SetConfig sets the configuration blob from a map.
func (t *Tenant) SetConfig(cfg map[string]any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	t.Config = string(data)
	t.ParsedConfig = cfg
	return nil
}

// TenantMember grants a user membership in a tenant.
type TenantMember struct {
	ID       string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID string    `gorm:"not null;size:128;index;uniqueIndex:idx_tenant_user" json:"tenant_id"`
	User     string    `gorm:"column:username;not null;size:255;uniqueIndex:idx_tenant_user" json:"user"`
	Role     string    `gorm:"default:member;size:32" json:"role"` // owner, member
	AddedAt  time.Time `gorm:"autoCreateTime" json:"added_at"`
}

// TableName returns the table name for TenantMember.
func (TenantMember) TableName() string {
	return "tenant_members"
}

// AuditEvent is one row of the append-only tenant event log.
// Rows are never updated or deleted.
type AuditEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string    `gorm:"not null;size:128;index" json:"tenant_id"`
	Kind      string    `gorm:"not null;size:64" json:"kind"` // tenant:created, tenant:paused, ...
	Actor     string    `gorm:"size:255" json:"actor,omitempty"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"` // JSON payload
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for AuditEvent.
func (AuditEvent) TableName() string {
	return "audit_events"
}

// SubscriberContext is the per-tenant per-subscriber context blob external
// workers accumulate between invocations.
type SubscriberContext struct {
	TenantID   string    `gorm:"primaryKey;size:128" json:"tenant_id"`
	Subscriber string    `gorm:"primaryKey;size:128" json:"subscriber"`
	Context    string    `gorm:"type:text" json:"context"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SubscriberContext.
func (SubscriberContext) TableName() string {
	return "subscriber_contexts"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Tenant{},
		&TenantMember{},
		&AuditEvent{},
		&SubscriberContext{},
	}
}
