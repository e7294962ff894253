package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// newID generates a fresh UUID string for registry rows that need one.
func newID() string {
	return uuid.New().String()
}

// ============================================
// AUDIT LOG (append-only)
// ============================================

func (s *GORMStore) AppendAudit(ctx context.Context, event *AuditEvent) error {
	if event.ID == "" {
		event.ID = newID()
	}
	event.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *GORMStore) ListAudit(ctx context.Context, tenantID string, limit int) ([]*AuditEvent, error) {
	var events []*AuditEvent
	q := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ============================================
// SUBSCRIBER CONTEXT
// ============================================

func (s *GORMStore) GetSubscriberContext(ctx context.Context, tenantID, subscriber string) (*SubscriberContext, error) {
	var sc SubscriberContext
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND subscriber = ?", tenantID, subscriber).
		First(&sc).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrContextNotFound)
	}
	return &sc, nil
}

func (s *GORMStore) PutSubscriberContext(ctx context.Context, sc *SubscriberContext) error {
	sc.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(sc).Error
}
