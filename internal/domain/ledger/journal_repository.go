package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JournalEntryRepository defines the interface for journal persistence
type JournalEntryRepository interface {
	// Create stores a draft entry with its lines
	Create(ctx context.Context, entry *JournalEntry) error

	// Update persists a status transition (post, reverse, cancel)
	Update(ctx context.Context, entry *JournalEntry) error

	// FindByID finds an entry with its lines within the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*JournalEntry, error)

	// FindByNumber finds an entry by its entry number within the tenant
	FindByNumber(ctx context.Context, tenantID uuid.UUID, entryNumber string) (*JournalEntry, error)

	// FindByPeriod lists entries of an accounting period
	FindByPeriod(ctx context.Context, tenantID uuid.UUID, year, month int) ([]*JournalEntry, error)

	// FindBySourceTxn lists entries produced by a transaction
	FindBySourceTxn(ctx context.Context, tenantID, txnID uuid.UUID) ([]*JournalEntry, error)

	// NextEntryNumber allocates the next value of the gap-free
	// per-(tenant, year) sequence. Must be called inside the same
	// atomic unit as the posting itself so failed posts do not burn
	// sequence values.
	NextEntryNumber(ctx context.Context, tenantID uuid.UUID, year int) (int64, error)

	// PostedLinesThrough returns the posted lines of the tenant up to
	// the cutoff, for trial-balance computation
	PostedLinesThrough(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]JournalLine, error)
}
