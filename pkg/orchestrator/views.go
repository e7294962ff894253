package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mkarlsen/tenantd/pkg/registry"
)

// BudgetView is a read-only budget projection.
type BudgetView struct {
	TenantID string  `json:"tenant_id"`
	Ceiling  float64 `json:"ceiling"`
	Spent    float64 `json:"spent"`
}

// Remaining returns the unspent budget, never negative.
func (v BudgetView) Remaining() float64 {
	if v.Spent >= v.Ceiling {
		return 0
	}
	return v.Ceiling - v.Spent
}

// Status returns the tenant's lifecycle status, preferring the live ledger
// view over the registry.
func (o *Orchestrator) Status(ctx context.Context, id string) (registry.Status, error) {
	return o.currentStatus(ctx, id)
}

// Budget returns the tenant's budget ceiling and spend, preferring the live
// ledger spend when the tenant is tracked.
func (o *Orchestrator) Budget(ctx context.Context, id string) (*BudgetView, error) {
	tenant, err := o.reg.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	spent := tenant.BudgetSpent
	if live, ok := o.ledger.Spent(id); ok {
		spent = live
	}
	return &BudgetView{TenantID: id, Ceiling: tenant.Budget, Spent: spent}, nil
}

// RecordSpend adds amount to the tenant's running spend. The ledger total is
// mirrored to the registry and the state hash so a crash or checkpoint at
// any moment preserves it. Spend is monotonic: amount must be positive, and
// only tracked tenants accumulate spend.
func (o *Orchestrator) RecordSpend(ctx context.Context, id string, amount float64) (err error) {
	defer o.observe("record_spend", time.Now(), &err)

	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	total, ok := o.ledger.AddSpend(id, amount)
	if !ok {
		status, statusErr := o.currentStatus(ctx, id)
		if statusErr != nil {
			return statusErr
		}
		return &InvalidTransitionError{TenantID: id, Current: string(status), Requested: "record_spend"}
	}

	if err := o.reg.SetBudgetSpent(ctx, id, total); err != nil {
		return fmt.Errorf("failed to mirror spend: %w", err)
	}
	if err := o.states.SetStateFields(ctx, id, map[string]string{
		"budget_spent": strconv.FormatFloat(total, 'g', -1, 64),
	}); err != nil {
		return fmt.Errorf("failed to mirror spend to state: %w", err)
	}
	return nil
}
