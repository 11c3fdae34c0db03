package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

// GormAccountRepository implements ledger.AccountRepository using GORM.
// Balance mutations are persisted with a compare-and-set on the row
// version so two concurrent writers can never both win.
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Create creates a new account
func (r *GormAccountRepository) Create(ctx context.Context, account *ledger.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// SaveWithLock persists the account with a compare-and-set on
// (id, version). The aggregate increments its version on every
// mutation, so the stored row must still be at version-1.
func (r *GormAccountRepository) SaveWithLock(ctx context.Context, account *ledger.Account) error {
	result := r.db.WithContext(ctx).
		Model(&ledger.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version-1).
		Updates(map[string]interface{}{
			"status":       account.Status,
			"balance":      account.Balance,
			"frozen":       account.Frozen,
			"pending":      account.Pending,
			"min_balance":  account.MinBalance,
			"max_balance":  account.MaxBalance,
			"allow_debit":  account.AllowDebit,
			"allow_credit": account.AllowCredit,
			"closed_at":    account.ClosedAt,
			"version":      account.Version,
			"updated_at":   account.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is gone or another writer advanced the version.
		var count int64
		if err := r.db.WithContext(ctx).Model(&ledger.Account{}).
			Where("id = ?", account.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID finds an account by ID within the tenant
func (r *GormAccountRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Account, error) {
	var account ledger.Account
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindByNumber finds an account by its globally unique number
func (r *GormAccountRepository) FindByNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	var account ledger.Account
	if err := r.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindByNaturalKey finds the account for (tenant, owner, currency, type)
func (r *GormAccountRepository) FindByNaturalKey(ctx context.Context, tenantID, ownerUserID uuid.UUID, currency string, accountType ledger.AccountType) (*ledger.Account, error) {
	var account ledger.Account
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND owner_user_id = ? AND currency = ? AND type = ?",
			tenantID, ownerUserID, currency, accountType).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindByOwner lists the accounts of a user within the tenant
func (r *GormAccountRepository) FindByOwner(ctx context.Context, tenantID, ownerUserID uuid.UUID) ([]*ledger.Account, error) {
	var accounts []*ledger.Account
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND owner_user_id = ?", tenantID, ownerUserID).
		Order("currency ASC, type ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// FindByTenant lists accounts of a tenant, optionally filtered by currency
func (r *GormAccountRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, currency string) ([]*ledger.Account, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if currency != "" {
		query = query.Where("currency = ?", currency)
	}

	var accounts []*ledger.Account
	if err := query.Order("account_number ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// FindWithReservations returns accounts still holding frozen funds that
// nothing has touched since the cutoff
func (r *GormAccountRepository) FindWithReservations(ctx context.Context, updatedBefore time.Time, limit int) ([]*ledger.Account, error) {
	var accounts []*ledger.Account
	if err := r.db.WithContext(ctx).
		Where("frozen > 0").
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

var _ ledger.AccountRepository = (*GormAccountRepository)(nil)
