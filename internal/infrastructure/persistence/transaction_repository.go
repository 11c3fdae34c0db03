package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/shared"
)

// GormTransactionRepository implements exchange.TransactionRepository
// using GORM. Workflow transitions are persisted with a compare-and-set
// on the row version; status-history rows are append-only.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Create creates a new transaction with its initial status history
func (r *GormTransactionRepository) Create(ctx context.Context, txn *exchange.Transaction) error {
	err := r.db.WithContext(ctx).Create(txn).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// SaveWithLock persists an updated transaction using optimistic
// concurrency on (id, version). Status-history rows are inserted with
// an on-conflict no-op so already-persisted changes are not duplicated.
func (r *GormTransactionRepository) SaveWithLock(ctx context.Context, txn *exchange.Transaction, expectedVersion int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&exchange.Transaction{}).
			Where("id = ? AND version = ?", txn.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":           txn.Status,
				"stage":            txn.Stage,
				"quoted_rate":      txn.QuotedRate,
				"equivalent_amount": txn.EquivalentAmount,
				"commission":       txn.Commission,
				"fees":             txn.Fees,
				"net_amount":       txn.NetAmount,
				"journal_entry_id": txn.JournalEntryID,
				"value_date":       txn.ValueDate,
				"processed_at":     txn.ProcessedAt,
				"risk_score":       txn.RiskScore,
				"compliance_flags": txn.ComplianceFlags,
				"approver_id":      txn.ApproverID,
				"processor_id":     txn.ProcessorID,
				"retry_count":      txn.RetryCount,
				"error_code":       txn.ErrorCode,
				"correlation_id":   txn.CorrelationID,
				"reconciled_at":    txn.ReconciledAt,
				"version":          txn.Version,
				"updated_at":       txn.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&exchange.Transaction{}).
				Where("id = ?", txn.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			return shared.ErrConcurrencyConflict
		}

		if len(txn.StatusHistory) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(txn.StatusHistory).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID finds a transaction with its status history within the tenant
func (r *GormTransactionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*exchange.Transaction, error) {
	var txn exchange.Transaction
	if err := r.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("changed_at ASC")
		}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// FindByReference finds a transaction by its reference within the tenant
func (r *GormTransactionRepository) FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*exchange.Transaction, error) {
	var txn exchange.Transaction
	if err := r.db.WithContext(ctx).
		Preload("StatusHistory").
		Where("tenant_id = ? AND reference = ?", tenantID, reference).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// FindByIdempotencyKey finds a transaction by its idempotency key within the tenant
func (r *GormTransactionRepository) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*exchange.Transaction, error) {
	var txn exchange.Transaction
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// FindByCorrelation finds the remittance legs sharing a correlation ID.
// Deliberately not tenant scoped: the legs live in different tenants.
func (r *GormTransactionRepository) FindByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*exchange.Transaction, error) {
	var txns []*exchange.Transaction
	if err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// FindByCustomer lists transactions of a customer within the tenant
func (r *GormTransactionRepository) FindByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, filter *exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	if filter == nil {
		filter = exchange.NewTransactionFilter()
	}
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	query = applyTransactionFilter(query, filter)

	var txns []*exchange.Transaction
	if err := query.
		Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// FindByFilter lists transactions of the tenant matching the filter
func (r *GormTransactionRepository) FindByFilter(ctx context.Context, tenantID uuid.UUID, filter *exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	if filter == nil {
		filter = exchange.NewTransactionFilter()
	}
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	query = applyTransactionFilter(query, filter)

	var txns []*exchange.Transaction
	if err := query.
		Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// CountByFilter counts transactions of the tenant matching the filter
func (r *GormTransactionRepository) CountByFilter(ctx context.Context, tenantID uuid.UUID, filter *exchange.TransactionFilter) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&exchange.Transaction{}).
		Where("tenant_id = ?", tenantID)
	query = applyTransactionFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindStuck returns non-terminal transactions untouched since the cutoff
func (r *GormTransactionRepository) FindStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*exchange.Transaction, error) {
	terminal := []exchange.TransactionStatus{
		exchange.TxnStatusCompleted,
		exchange.TxnStatusFailed,
		exchange.TxnStatusCancelled,
		exchange.TxnStatusRejected,
	}

	var txns []*exchange.Transaction
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", terminal).
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// CountActiveByFromAccount counts non-terminal transactions that debit
// the account
func (r *GormTransactionRepository) CountActiveByFromAccount(ctx context.Context, tenantID, accountID uuid.UUID) (int64, error) {
	terminal := []exchange.TransactionStatus{
		exchange.TxnStatusCompleted,
		exchange.TxnStatusFailed,
		exchange.TxnStatusCancelled,
		exchange.TxnStatusRejected,
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&exchange.Transaction{}).
		Where("tenant_id = ?", tenantID).
		Where("from_account_id = ?", accountID).
		Where("status NOT IN ?", terminal).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindUnreconciledRemittances returns remittance legs past the
// remittance window with no reconciliation stamp
func (r *GormTransactionRepository) FindUnreconciledRemittances(ctx context.Context, olderThan time.Time, limit int) ([]*exchange.Transaction, error) {
	var txns []*exchange.Transaction
	if err := r.db.WithContext(ctx).
		Where("type IN ?", []exchange.TransactionType{
			exchange.TxnTypeRemittanceSend,
			exchange.TxnTypeRemittanceRecv,
		}).
		Where("status = ?", exchange.TxnStatusCompleted).
		Where("reconciled_at IS NULL").
		Where("created_at < ?", olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// SumSettledForCustomerSince totals settled debit amounts for a
// customer in the given currency, for daily cap checks
func (r *GormTransactionRepository) SumSettledForCustomerSince(ctx context.Context, tenantID, customerID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&exchange.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Where("from_currency = ?", currency).
		Where("status IN ?", []exchange.TransactionStatus{
			exchange.TxnStatusSettled,
			exchange.TxnStatusCompleted,
		}).
		Where("processed_at >= ?", since).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func applyTransactionFilter(query *gorm.DB, filter *exchange.TransactionFilter) *gorm.DB {
	if filter == nil {
		return query
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Currency != "" {
		query = query.Where("from_currency = ? OR to_currency = ?", filter.Currency, filter.Currency)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		query = query.Where("reference ILIKE ? OR description ILIKE ?", keyword, keyword)
	}
	return query
}

var _ exchange.TransactionRepository = (*GormTransactionRepository)(nil)
