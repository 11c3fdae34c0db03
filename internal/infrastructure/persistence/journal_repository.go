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

// EntryNumberSequence backs the gap-free per-(tenant, year) journal
// entry numbering. Rows are only ever advanced inside the posting
// transaction, so a rolled-back post rolls the counter back with it.
type EntryNumberSequence struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Year      int       `gorm:"primaryKey"`
	LastValue int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (EntryNumberSequence) TableName() string {
	return "journal_entry_sequences"
}

// GormJournalEntryRepository implements ledger.JournalEntryRepository using GORM
type GormJournalEntryRepository struct {
	db *gorm.DB
}

// NewGormJournalEntryRepository creates a new GormJournalEntryRepository
func NewGormJournalEntryRepository(db *gorm.DB) *GormJournalEntryRepository {
	return &GormJournalEntryRepository{db: db}
}

// Create stores a draft entry with its lines
func (r *GormJournalEntryRepository) Create(ctx context.Context, entry *ledger.JournalEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Update persists a status transition. Lines are immutable after
// creation, so only the entry row is written.
func (r *GormJournalEntryRepository) Update(ctx context.Context, entry *ledger.JournalEntry) error {
	result := r.db.WithContext(ctx).
		Model(&ledger.JournalEntry{}).
		Where("id = ? AND tenant_id = ?", entry.ID, entry.TenantID).
		Updates(map[string]interface{}{
			"entry_number": entry.EntryNumber,
			"status":       entry.Status,
			"posted_by":    entry.PostedBy,
			"posted_at":    entry.PostedAt,
			"reversed_by":  entry.ReversedBy,
			"reversed_at":  entry.ReversedAt,
			"reversal_of":  entry.ReversalOf,
			"version":      entry.Version,
			"updated_at":   entry.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an entry with its lines within the tenant
func (r *GormJournalEntryRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindByNumber finds an entry by its entry number within the tenant
func (r *GormJournalEntryRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, entryNumber string) (*ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("tenant_id = ? AND entry_number = ?", tenantID, entryNumber).
		First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindByPeriod lists entries of an accounting period
func (r *GormJournalEntryRepository) FindByPeriod(ctx context.Context, tenantID uuid.UUID, year, month int) ([]*ledger.JournalEntry, error) {
	var entries []*ledger.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("tenant_id = ? AND period_year = ? AND period_month = ?", tenantID, year, month).
		Order("entry_date ASC, entry_number ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindBySourceTxn lists entries produced by a transaction
func (r *GormJournalEntryRepository) FindBySourceTxn(ctx context.Context, tenantID, txnID uuid.UUID) ([]*ledger.JournalEntry, error) {
	var entries []*ledger.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("tenant_id = ? AND source_txn_id = ?", tenantID, txnID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// NextEntryNumber allocates the next value of the gap-free
// per-(tenant, year) sequence. The upsert takes a row lock, so
// concurrent posters for the same tenant and year serialize here
// and the sequence never skips.
func (r *GormJournalEntryRepository) NextEntryNumber(ctx context.Context, tenantID uuid.UUID, year int) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO journal_entry_sequences (tenant_id, year, last_value)
		VALUES (?, ?, 1)
		ON CONFLICT (tenant_id, year)
		DO UPDATE SET last_value = journal_entry_sequences.last_value + 1
		RETURNING last_value`,
		tenantID, year,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

// PostedLinesThrough returns the posted lines of the tenant up to the cutoff
func (r *GormJournalEntryRepository) PostedLinesThrough(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]ledger.JournalLine, error) {
	var lines []ledger.JournalLine
	if err := r.db.WithContext(ctx).
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Where("journal_entries.tenant_id = ?", tenantID).
		Where("journal_entries.status = ?", ledger.EntryStatusPosted).
		Where("journal_entries.entry_date <= ?", asOf).
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

var _ ledger.JournalEntryRepository = (*GormJournalEntryRepository)(nil)
