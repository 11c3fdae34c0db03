package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
)

// GormRefreshTokenRepository implements identity.RefreshTokenRepository using GORM
type GormRefreshTokenRepository struct {
	db *gorm.DB
}

// NewGormRefreshTokenRepository creates a new GormRefreshTokenRepository
func NewGormRefreshTokenRepository(db *gorm.DB) *GormRefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

// Create stores a new refresh-token record
func (r *GormRefreshTokenRepository) Create(ctx context.Context, token *identity.RefreshToken) error {
	err := r.db.WithContext(ctx).Create(token).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// Update updates a refresh-token record
func (r *GormRefreshTokenRepository) Update(ctx context.Context, token *identity.RefreshToken) error {
	result := r.db.WithContext(ctx).
		Model(&identity.RefreshToken{}).
		Where("id = ?", token.ID).
		Updates(map[string]interface{}{
			"revoked_at": token.RevokedAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByHash finds a token record by its storage hash
func (r *GormRefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*identity.RefreshToken, error) {
	var token identity.RefreshToken
	if err := r.db.WithContext(ctx).
		Where("token_hash = ?", hash).
		First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// RevokeAllForUser revokes every live token of the user
func (r *GormRefreshTokenRepository) RevokeAllForUser(ctx context.Context, tenantID, userID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&identity.RefreshToken{}).
		Where("tenant_id = ? AND user_id = ? AND revoked_at IS NULL", tenantID, userID).
		Updates(map[string]interface{}{
			"revoked_at": now,
			"updated_at": now,
		}).Error
}

// DeleteExpired removes token records expired before the cutoff
func (r *GormRefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&identity.RefreshToken{})
	return result.RowsAffected, result.Error
}

var _ identity.RefreshTokenRepository = (*GormRefreshTokenRepository)(nil)
