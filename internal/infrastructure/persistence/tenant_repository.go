package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
)

// GormTenantRepository implements identity.TenantRepository using GORM.
// The Tenant aggregate carries its own column mapping, so no separate
// persistence model is needed.
type GormTenantRepository struct {
	db *gorm.DB
}

func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var tenant identity.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &tenant, nil
}

// FindByCode finds a tenant by its unique code, case-insensitively.
func (r *GormTenantRepository) FindByCode(ctx context.Context, code string) (*identity.Tenant, error) {
	var tenant identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(code)).
		First(&tenant).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &tenant, nil
}

// FindAll lists tenants matching the filter.
func (r *GormTenantRepository) FindAll(ctx context.Context, filter shared.Filter) ([]identity.Tenant, error) {
	return r.list(ctx, r.db.WithContext(ctx).Model(&identity.Tenant{}), filter)
}

// FindByStatus lists tenants in one lifecycle status.
func (r *GormTenantRepository) FindByStatus(ctx context.Context, status identity.TenantStatus, filter shared.Filter) ([]identity.Tenant, error) {
	query := r.db.WithContext(ctx).Model(&identity.Tenant{}).Where("status = ?", status)
	return r.list(ctx, query, filter)
}

func (r *GormTenantRepository) list(ctx context.Context, query *gorm.DB, filter shared.Filter) ([]identity.Tenant, error) {
	var tenants []identity.Tenant
	err := tenantSearch(query, filter.Search).
		Order(SortClause(filter, TenantSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// FindBranches finds the branch tenants of a parent tenant
func (r *GormTenantRepository) FindBranches(ctx context.Context, parentID uuid.UUID) ([]identity.Tenant, error) {
	var tenants []identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("parent_tenant_id = ?", parentID).
		Order("created_at ASC").
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// FindTrialExpiring finds trial tenants whose trial window closes
// within the given number of days.
func (r *GormTenantRepository) FindTrialExpiring(ctx context.Context, withinDays int) ([]identity.Tenant, error) {
	var tenants []identity.Tenant
	now := time.Now()

	if err := r.db.WithContext(ctx).
		Where("status = ?", identity.TenantStatusTrial).
		Where("trial_ends_at IS NOT NULL").
		Where("trial_ends_at > ? AND trial_ends_at <= ?", now, now.AddDate(0, 0, withinDays)).
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// Save creates or updates a tenant
func (r *GormTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	return r.db.WithContext(ctx).Save(tenant).Error
}

// Delete deletes a tenant
func (r *GormTenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&identity.Tenant{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts tenants matching the filter's search term.
func (r *GormTenantRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := tenantSearch(r.db.WithContext(ctx).Model(&identity.Tenant{}), filter.Search)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByCode checks if a tenant with the given code exists
func (r *GormTenantRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&identity.Tenant{}).
		Where("UPPER(code) = ?", strings.ToUpper(code)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// tenantSearch matches the search term against name and code.
func tenantSearch(query *gorm.DB, search string) *gorm.DB {
	if search == "" {
		return query
	}
	keyword := "%" + search + "%"
	return query.Where("name ILIKE ? OR code ILIKE ?", keyword, keyword)
}

// notFoundOr maps gorm's record-not-found to the domain error.
func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

var _ identity.TenantRepository = (*GormTenantRepository)(nil)
