package orchestrator

import (
	"sort"
	"sync"

	"github.com/mkarlsen/tenantd/pkg/registry"
)

// ledgerEntry is the orchestrator's live view of one tracked tenant.
type ledgerEntry struct {
	handle Handle
	status registry.Status
	spent  float64
}

// Ledger tracks tenants the orchestrator currently owns: their container
// handle, live status, and running budget spend. It is plain owned state
// injected into the orchestrator, never package-level; entries are removed
// exactly on archive and delete.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*ledgerEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*ledgerEntry)}
}

// Track registers a tenant with its container handle and live status,
// replacing any prior entry.
func (l *Ledger) Track(tenantID string, handle Handle, status registry.Status, spent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[tenantID] = &ledgerEntry{handle: handle, status: status, spent: spent}
}

// Remove drops a tenant from the ledger.
func (l *Ledger) Remove(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, tenantID)
}

// Handle returns the live container handle, if the tenant is tracked.
func (l *Ledger) Handle(tenantID string) (Handle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[tenantID]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// Status returns the live status, if the tenant is tracked.
func (l *Ledger) Status(tenantID string) (registry.Status, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[tenantID]
	if !ok {
		return "", false
	}
	return e.status, true
}

// SetStatus updates the live status of a tracked tenant.
func (l *Ledger) SetStatus(tenantID string, status registry.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[tenantID]; ok {
		e.status = status
	}
}

// Spent returns the live spend total, if the tenant is tracked.
func (l *Ledger) Spent(tenantID string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[tenantID]
	if !ok {
		return 0, false
	}
	return e.spent, true
}

// AddSpend adds amount to the live spend total and returns the new total.
func (l *Ledger) AddSpend(tenantID string, amount float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[tenantID]
	if !ok {
		return 0, false
	}
	e.spent += amount
	return e.spent, true
}

// SetSpent overwrites the live spend total of a tracked tenant.
func (l *Ledger) SetSpent(tenantID string, spent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[tenantID]; ok {
		e.spent = spent
	}
}

// ActiveCount returns the number of tracked tenants in active status.
func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n int
	for _, e := range l.entries {
		if e.status == registry.StatusActive {
			n++
		}
	}
	return n
}

// ActiveTenantIDs returns the ids of tracked tenants in active status,
// sorted for deterministic iteration. Implements checkpoint.TenantLister.
func (l *Ledger) ActiveTenantIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var ids []string
	for id, e := range l.entries {
		if e.status == registry.StatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
