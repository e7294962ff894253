package registry

import (
	"context"
	"time"
)

// ============================================
// TENANT OPERATIONS
// ============================================

func (s *GORMStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	err := s.db.WithContext(ctx).
		Preload("Members").
		Where("id = ?", id).
		First(&tenant).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrTenantNotFound)
	}
	return &tenant, nil
}

func (s *GORMStore) ListTenants(ctx context.Context, statuses ...Status) ([]*Tenant, error) {
	var tenants []*Tenant
	q := s.db.WithContext(ctx).Preload("Members")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *GORMStore) CountTenants(ctx context.Context, statuses ...Status) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&Tenant{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *GORMStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	if tenant.Status == "" {
		tenant.Status = StatusInitializing
	}

	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateTenant
		}
		return err
	}
	return nil
}

func (s *GORMStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return s.updateTenantFields(ctx, id, map[string]any{"status": status})
}

func (s *GORMStore) SetArchiveLocation(ctx context.Context, id, location string) error {
	return s.updateTenantFields(ctx, id, map[string]any{
		"status":           StatusArchived,
		"archive_location": location,
	})
}

func (s *GORMStore) SetBudgetSpent(ctx context.Context, id string, spent float64) error {
	return s.updateTenantFields(ctx, id, map[string]any{"budget_spent": spent})
}

// updateTenantFields applies a partial update and maps zero affected rows to
// ErrTenantNotFound.
func (s *GORMStore) updateTenantFields(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	result := s.db.WithContext(ctx).Model(&Tenant{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish "row absent" from "values already equal": GORM reports
		// zero affected rows for both on some backends.
		var count int64
		if err := s.db.WithContext(ctx).Model(&Tenant{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTenantNotFound
		}
	}
	return nil
}

// ============================================
// MEMBERSHIP OPERATIONS
// ============================================

func (s *GORMStore) AddMember(ctx context.Context, member *TenantMember) (string, error) {
	if member.ID == "" {
		member.ID = newID()
	}
	member.AddedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", ErrDuplicateMember
		}
		return "", err
	}
	return member.ID, nil
}

func (s *GORMStore) RemoveMember(ctx context.Context, tenantID, user string) error {
	result := s.db.WithContext(ctx).
		Where("tenant_id = ? AND username = ?", tenantID, user).
		Delete(&TenantMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *GORMStore) ListMembers(ctx context.Context, tenantID string) ([]*TenantMember, error) {
	var members []*TenantMember
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("added_at").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
