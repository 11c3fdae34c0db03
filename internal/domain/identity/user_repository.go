package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists users. Every lookup is scoped to a tenant;
// there is no cross-tenant read path.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*User, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*User, error)

	// FindAll returns one page of users plus the unpaged total
	FindAll(ctx context.Context, tenantID uuid.UUID, filter UserFilter) ([]*User, int64, error)

	ExistsByUsername(ctx context.Context, tenantID uuid.UUID, username string) (bool, error)
	ExistsByEmail(ctx context.Context, tenantID uuid.UUID, email string) (bool, error)
	Count(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// UserFilter narrows and pages user listings. Keyword matches
// username, email and display name. Nil pointer fields mean no filter.
type UserFilter struct {
	Keyword   string
	Status    *UserStatus
	Role      *UserRole
	KYCStatus *KYCStatus

	Page     int
	PageSize int

	SortBy    string
	SortOrder string
}

// NewUserFilter returns a filter for the first page, newest first.
func NewUserFilter() UserFilter {
	return UserFilter{
		Page:      1,
		PageSize:  20,
		SortBy:    "created_at",
		SortOrder: "desc",
	}
}
