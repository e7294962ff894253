package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation.
//
// It backs unit tests and single-process development runs; production
// deployments use the GORM store. Semantics match the GORM store, including
// error returns.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]*Tenant
	members  map[string][]*TenantMember // tenant id -> members
	audit    map[string][]*AuditEvent   // tenant id -> events, append order
	contexts map[string]*SubscriberContext
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*Tenant),
		members:  make(map[string][]*TenantMember),
		audit:    make(map[string][]*AuditEvent),
		contexts: make(map[string]*SubscriberContext),
	}
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	clone := *t
	clone.Members = append([]TenantMember(nil), derefMembers(m.members[id])...)
	return &clone, nil
}

func (m *MemoryStore) ListTenants(_ context.Context, statuses ...Status) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Tenant
	for _, t := range m.tenants {
		if matchStatus(t.Status, statuses) {
			clone := *t
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) CountTenants(_ context.Context, statuses ...Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, t := range m.tenants {
		if matchStatus(t.Status, statuses) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateTenant(_ context.Context, tenant *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tenants[tenant.ID]; exists {
		return ErrDuplicateTenant
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	if tenant.Status == "" {
		tenant.Status = StatusInitializing
	}
	clone := *tenant
	m.tenants[tenant.ID] = &clone
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetArchiveLocation(_ context.Context, id, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.Status = StatusArchived
	t.ArchiveLocation = location
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetBudgetSpent(_ context.Context, id string, spent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.BudgetSpent = spent
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AddMember(_ context.Context, member *TenantMember) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.members[member.TenantID] {
		if existing.User == member.User {
			return "", ErrDuplicateMember
		}
	}
	if member.ID == "" {
		member.ID = newID()
	}
	member.AddedAt = time.Now()
	clone := *member
	m.members[member.TenantID] = append(m.members[member.TenantID], &clone)
	return member.ID, nil
}

func (m *MemoryStore) RemoveMember(_ context.Context, tenantID, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.members[tenantID]
	for i, existing := range members {
		if existing.User == user {
			m.members[tenantID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return ErrMemberNotFound
}

func (m *MemoryStore) ListMembers(_ context.Context, tenantID string) ([]*TenantMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*TenantMember, 0, len(m.members[tenantID]))
	for _, member := range m.members[tenantID] {
		clone := *member
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = newID()
	}
	event.CreatedAt = time.Now()
	clone := *event
	m.audit[event.TenantID] = append(m.audit[event.TenantID], &clone)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, tenantID string, limit int) ([]*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.audit[tenantID]
	result := make([]*AuditEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		clone := *events[i]
		result = append(result, &clone)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) GetSubscriberContext(_ context.Context, tenantID, subscriber string) (*SubscriberContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc, ok := m.contexts[tenantID+"\x00"+subscriber]
	if !ok {
		return nil, ErrContextNotFound
	}
	clone := *sc
	return &clone, nil
}

func (m *MemoryStore) PutSubscriberContext(_ context.Context, sc *SubscriberContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc.UpdatedAt = time.Now()
	clone := *sc
	m.contexts[sc.TenantID+"\x00"+sc.Subscriber] = &clone
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func matchStatus(s Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

func derefMembers(members []*TenantMember) []TenantMember {
	result := make([]TenantMember, 0, len(members))
	for _, m := range members {
		result = append(result, *m)
	}
	return result
}
