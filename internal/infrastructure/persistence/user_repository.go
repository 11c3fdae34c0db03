package persistence

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/infrastructure/persistence/models"
)

// GormUserRepository implements identity.UserRepository using GORM
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user
func (r *GormUserRepository) Create(ctx context.Context, user *identity.User) error {
	model, err := userModelOf(user)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists changes to an existing user
func (r *GormUserRepository) Update(ctx context.Context, user *identity.User) error {
	model, err := userModelOf(user)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", user.ID, user.TenantID).
		Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user within the tenant
func (r *GormUserRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&models.UserModel{}, "id = ? AND tenant_id = ?", id, tenantID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a user by ID within the tenant
func (r *GormUserRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*identity.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return userToDomain(&model)
}

// FindByUsername finds a user by username within the tenant
func (r *GormUserRepository) FindByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*identity.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND username = ?", tenantID, strings.ToLower(username)).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return userToDomain(&model)
}

// FindByEmail finds a user by email within the tenant
func (r *GormUserRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*identity.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(email) = ?", tenantID, strings.ToLower(email)).
		First(&model).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return userToDomain(&model)
}

// FindAll lists users of the tenant matching the filter
func (r *GormUserRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter identity.UserFilter) ([]*identity.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("tenant_id = ?", tenantID)

	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		query = query.Where("username ILIKE ? OR email ILIKE ? OR display_name ILIKE ?", keyword, keyword, keyword)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.KYCStatus != nil {
		query = query.Where("kyc_status = ?", *filter.KYCStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := shared.Filter{Page: filter.Page, PageSize: filter.PageSize, OrderBy: filter.SortBy, OrderDir: filter.SortOrder}
	var userModels []models.UserModel
	if err := query.
		Order(SortClause(page, UserSortFields, "created_at")).
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&userModels).Error; err != nil {
		return nil, 0, err
	}

	users := make([]*identity.User, 0, len(userModels))
	for i := range userModels {
		user, err := userToDomain(&userModels[i])
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	return users, total, nil
}

// ExistsByUsername checks if a username is taken within the tenant
func (r *GormUserRepository) ExistsByUsername(ctx context.Context, tenantID uuid.UUID, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("tenant_id = ? AND username = ?", tenantID, strings.ToLower(username)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExistsByEmail checks if an email is taken within the tenant
func (r *GormUserRepository) ExistsByEmail(ctx context.Context, tenantID uuid.UUID, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("tenant_id = ? AND LOWER(email) = ?", tenantID, strings.ToLower(email)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count counts the users of a tenant
func (r *GormUserRepository) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func userModelOf(user *identity.User) (*models.UserModel, error) {
	codes := user.BackupCodeHashes
	if codes == nil {
		codes = []string{}
	}
	encoded, err := json.Marshal(codes)
	if err != nil {
		return nil, err
	}
	return models.UserModelFromDomain(user, string(encoded)), nil
}

func userToDomain(model *models.UserModel) (*identity.User, error) {
	user := model.ToDomain()
	if model.BackupCodeHashes != "" {
		if err := json.Unmarshal([]byte(model.BackupCodeHashes), &user.BackupCodeHashes); err != nil {
			return nil, err
		}
	}
	return user, nil
}

var _ identity.UserRepository = (*GormUserRepository)(nil)
