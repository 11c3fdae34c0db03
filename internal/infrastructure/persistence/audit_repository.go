package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/audit"
)

// GormAuditRepository implements audit.Repository using GORM. Events
// are append-only; there is no update path.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append stores a batch of audit events in one statement
func (r *GormAuditRepository) Append(ctx context.Context, events ...*audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(events).Error
}

// FindByFilter lists events of the tenant matching the filter
func (r *GormAuditRepository) FindByFilter(ctx context.Context, tenantID uuid.UUID, filter *audit.Filter) ([]*audit.Event, error) {
	if filter == nil {
		filter = audit.NewFilter()
	}
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	query = applyAuditFilter(query, filter)

	var events []*audit.Event
	if err := query.
		Order("occurred_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter counts events of the tenant matching the filter
func (r *GormAuditRepository) CountByFilter(ctx context.Context, tenantID uuid.UUID, filter *audit.Filter) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&audit.Event{}).
		Where("tenant_id = ?", tenantID)
	query = applyAuditFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindByEntity lists the events recorded against one entity
func (r *GormAuditRepository) FindByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*audit.Event, error) {
	var events []*audit.Event
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID).
		Order("occurred_at DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// PurgeBefore removes events older than the retention cutoff
func (r *GormAuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&audit.Event{})
	return result.RowsAffected, result.Error
}

func applyAuditFilter(query *gorm.DB, filter *audit.Filter) *gorm.DB {
	if filter == nil {
		return query
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Risk != nil {
		query = query.Where("risk = ?", *filter.Risk)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at <= ?", *filter.To)
	}
	return query
}

var _ audit.Repository = (*GormAuditRepository)(nil)
