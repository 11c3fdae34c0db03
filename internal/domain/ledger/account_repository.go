package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence.
//
// SaveWithLock is the only way balance mutations reach storage: it
// compares the stored version against the aggregate's pre-mutation
// version and fails with CONCURRENT_MODIFICATION on mismatch.
type AccountRepository interface {
	// Create creates a new account
	Create(ctx context.Context, account *Account) error

	// SaveWithLock persists the account with a compare-and-set on
	// (id, version). Returns shared.ErrConcurrencyConflict when another
	// writer advanced the version first.
	SaveWithLock(ctx context.Context, account *Account) error

	// FindByID finds an account by ID within the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)

	// FindByNumber finds an account by its globally unique number
	FindByNumber(ctx context.Context, accountNumber string) (*Account, error)

	// FindByNaturalKey finds the account for (tenant, owner, currency, type)
	FindByNaturalKey(ctx context.Context, tenantID, ownerUserID uuid.UUID, currency string, accountType AccountType) (*Account, error)

	// FindByOwner lists the accounts of a user within the tenant
	FindByOwner(ctx context.Context, tenantID, ownerUserID uuid.UUID) ([]*Account, error)

	// FindByTenant lists accounts of a tenant, optionally filtered by currency
	FindByTenant(ctx context.Context, tenantID uuid.UUID, currency string) ([]*Account, error)

	// FindWithReservations returns accounts still holding frozen funds
	// that nothing has touched since the cutoff, up to limit rows.
	FindWithReservations(ctx context.Context, updatedBefore time.Time, limit int) ([]*Account, error)
}
