package ledger

import (
	"context"

	"github.com/kambio/backend/internal/domain/ledger"
)

// LedgerRepositories exposes the repositories participating in one
// atomic posting unit.
type LedgerRepositories interface {
	AccountRepo() ledger.AccountRepository
	JournalRepo() ledger.JournalEntryRepository
}

// TransactionScope executes a function atomically: either every
// repository write inside fn commits, or none do. Entry numbering runs
// inside the same unit so failed posts do not burn sequence values.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos LedgerRepositories) error) error
}
