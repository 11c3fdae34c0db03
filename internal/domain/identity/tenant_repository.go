package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/shared"
)

// TenantRepository persists tenants. Unlike every other repository,
// tenant lookups are unscoped: tenants are the scope.
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCode(ctx context.Context, code string) (*Tenant, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Tenant, error)
	FindByStatus(ctx context.Context, status TenantStatus, filter shared.Filter) ([]Tenant, error)

	// FindBranches returns the tenants linked under a parent tenant
	FindBranches(ctx context.Context, parentID uuid.UUID) ([]Tenant, error)

	// FindTrialExpiring returns tenants whose trial ends within the
	// given number of days
	FindTrialExpiring(ctx context.Context, withinDays int) ([]Tenant, error)

	Save(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, filter shared.Filter) (int64, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
}
