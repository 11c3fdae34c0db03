package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/shared"
)

// RefreshToken is a persisted refresh-token record. Only the SHA-256
// hash of the opaque token is stored; the raw value is handed to the
// client once and never kept.
type RefreshToken struct {
	shared.BaseEntity
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	TokenHash   string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	ExpiresAt   time.Time  `gorm:"not null;index"`
	RotatedFrom *uuid.UUID `gorm:"type:uuid"` // Previous token in the rotation chain
	RevokedAt   *time.Time
	CreatedIP   string `gorm:"type:varchar(64)"`
	UserAgent   string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// HashRefreshToken derives the storage hash for a raw refresh token.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewRefreshToken creates a refresh-token record from a raw token.
func NewRefreshToken(tenantID, userID uuid.UUID, raw string, ttl time.Duration, ip, userAgent string) *RefreshToken {
	return &RefreshToken{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		UserID:     userID,
		TokenHash:  HashRefreshToken(raw),
		ExpiresAt:  time.Now().Add(ttl),
		CreatedIP:  ip,
		UserAgent:  userAgent,
	}
}

// Rotate produces the successor token record and revokes the receiver.
func (t *RefreshToken) Rotate(raw string, ttl time.Duration, ip, userAgent string) *RefreshToken {
	now := time.Now()
	t.RevokedAt = &now

	next := NewRefreshToken(t.TenantID, t.UserID, raw, ttl, ip, userAgent)
	prev := t.ID
	next.RotatedFrom = &prev
	return next
}

// Revoke marks the token revoked
func (t *RefreshToken) Revoke() {
	now := time.Now()
	t.RevokedAt = &now
}

// IsRevoked reports whether the token has been revoked
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether the token has expired
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable reports whether the token can still be presented
func (t *RefreshToken) IsUsable() bool {
	return !t.IsRevoked() && !t.IsExpired()
}

// RefreshTokenRepository defines the interface for refresh-token persistence
type RefreshTokenRepository interface {
	// Create stores a new refresh-token record
	Create(ctx context.Context, token *RefreshToken) error

	// Update updates a refresh-token record
	Update(ctx context.Context, token *RefreshToken) error

	// FindByHash finds a token record by its storage hash
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// RevokeAllForUser revokes every live token of the user.
	// Used on logout-all and on rotation-reuse detection.
	RevokeAllForUser(ctx context.Context, tenantID, userID uuid.UUID) error

	// DeleteExpired removes token records expired before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
