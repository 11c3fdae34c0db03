package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRepository persists Transaction aggregates
type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) error
	// SaveWithLock persists an updated transaction using optimistic
	// concurrency on (id, version); a miss returns
	// shared.ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, txn *Transaction, expectedVersion int) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Transaction, error)
	FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*Transaction, error)
	FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*Transaction, error)
	FindByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*Transaction, error)
	FindByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, filter *TransactionFilter) ([]*Transaction, error)
	FindByFilter(ctx context.Context, tenantID uuid.UUID, filter *TransactionFilter) ([]*Transaction, error)
	CountByFilter(ctx context.Context, tenantID uuid.UUID, filter *TransactionFilter) (int64, error)
	// FindStuck returns non-terminal transactions untouched since the
	// cutoff, for the recovery sweep.
	FindStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*Transaction, error)
	// CountActiveByFromAccount counts non-terminal transactions that
	// debit the account, i.e. those whose reservation is still live.
	CountActiveByFromAccount(ctx context.Context, tenantID, accountID uuid.UUID) (int64, error)
	// FindUnreconciledRemittances returns remittance legs past the
	// remittance window with no reconciliation stamp.
	FindUnreconciledRemittances(ctx context.Context, olderThan time.Time, limit int) ([]*Transaction, error)
	// SumSettledForCustomerSince totals settled debit amounts for a
	// customer in the given currency, for daily cap checks.
	SumSettledForCustomerSince(ctx context.Context, tenantID, customerID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error)
}

// TransactionFilter narrows transaction queries
type TransactionFilter struct {
	Status    *TransactionStatus
	Type      *TransactionType
	Currency  string
	DateFrom  *time.Time
	DateTo    *time.Time
	Keyword   string
	Page      int
	PageSize  int
}

// NewTransactionFilter creates a filter with default pagination
func NewTransactionFilter() *TransactionFilter {
	return &TransactionFilter{Page: 1, PageSize: 20}
}

// WithStatus filters by status
func (f *TransactionFilter) WithStatus(status TransactionStatus) *TransactionFilter {
	f.Status = &status
	return f
}

// WithType filters by transaction type
func (f *TransactionFilter) WithType(tt TransactionType) *TransactionFilter {
	f.Type = &tt
	return f
}

// WithDateRange filters by creation time
func (f *TransactionFilter) WithDateRange(from, to time.Time) *TransactionFilter {
	f.DateFrom = &from
	f.DateTo = &to
	return f
}

// WithKeyword filters by reference or description
func (f *TransactionFilter) WithKeyword(keyword string) *TransactionFilter {
	f.Keyword = keyword
	return f
}

// WithPagination sets the page window
func (f *TransactionFilter) WithPagination(page, pageSize int) *TransactionFilter {
	if page > 0 {
		f.Page = page
	}
	if pageSize > 0 {
		f.PageSize = pageSize
	}
	return f
}

// Offset returns the query offset
func (f *TransactionFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Limit returns the query limit
func (f *TransactionFilter) Limit() int {
	if f.PageSize <= 0 || f.PageSize > 100 {
		return 20
	}
	return f.PageSize
}

// RateRepository persists published exchange rates
type RateRepository interface {
	Create(ctx context.Context, rate *ExchangeRate) error
	Update(ctx context.Context, rate *ExchangeRate) error
	// FindCurrent returns the latest effective rate for the pair
	FindCurrent(ctx context.Context, tenantID uuid.UUID, from, to string) (*ExchangeRate, error)
	FindEffectiveAt(ctx context.Context, tenantID uuid.UUID, from, to string, at time.Time) (*ExchangeRate, error)
	FindHistory(ctx context.Context, tenantID uuid.UUID, from, to string, since time.Time) ([]*ExchangeRate, error)
	FindAllCurrent(ctx context.Context, tenantID uuid.UUID) ([]*ExchangeRate, error)
}
