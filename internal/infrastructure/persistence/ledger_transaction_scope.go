package persistence

import (
	"context"

	"gorm.io/gorm"

	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/domain/ledger"
)

// GormLedgerTransactionScope implements the posting transaction scope
// using GORM transactions. Every repository write inside Execute shares
// one database transaction, including entry-number allocation.
type GormLedgerTransactionScope struct {
	db *gorm.DB
}

// NewGormLedgerTransactionScope creates a new GormLedgerTransactionScope
func NewGormLedgerTransactionScope(db *gorm.DB) *GormLedgerTransactionScope {
	return &GormLedgerTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormLedgerTransactionScope) Execute(ctx context.Context, fn func(repos appledger.LedgerRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormLedgerRepositories{tx: tx}
		return fn(repos)
	})
}

// gormLedgerRepositories provides the ledger repositories scoped to one transaction
type gormLedgerRepositories struct {
	tx *gorm.DB
}

// AccountRepo returns the account repository scoped to the current transaction
func (r *gormLedgerRepositories) AccountRepo() ledger.AccountRepository {
	return NewGormAccountRepository(r.tx)
}

// JournalRepo returns the journal repository scoped to the current transaction
func (r *gormLedgerRepositories) JournalRepo() ledger.JournalEntryRepository {
	return NewGormJournalEntryRepository(r.tx)
}

var _ appledger.TransactionScope = (*GormLedgerTransactionScope)(nil)

var _ appledger.LedgerRepositories = (*gormLedgerRepositories)(nil)
