package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
)

// Aggregate type constant for JournalEntry
const AggregateTypeJournalEntry = "JournalEntry"

// Journal domain event types
const (
	EventTypeEntryDrafted  = "JournalEntryDrafted"
	EventTypeEntryPosted   = "JournalEntryPosted"
	EventTypeEntryReversed = "JournalEntryReversed"
)

// EntryDraftedEvent is published when a draft entry is created
type EntryDraftedEvent struct {
	shared.BaseDomainEvent
	EntryType JournalEntryType `json:"entry_type"`
	LineCount int              `json:"line_count"`
}

// NewEntryDraftedEvent creates a new EntryDraftedEvent
func NewEntryDraftedEvent(entry *JournalEntry) *EntryDraftedEvent {
	return &EntryDraftedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryDrafted, AggregateTypeJournalEntry, entry.ID, entry.TenantID),
		EntryType:       entry.Type,
		LineCount:       len(entry.Lines),
	}
}

// EntryPostedEvent is published when an entry is posted
type EntryPostedEvent struct {
	shared.BaseDomainEvent
	EntryNumber string           `json:"entry_number"`
	EntryType   JournalEntryType `json:"entry_type"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	SourceTxnID *uuid.UUID       `json:"source_txn_id,omitempty"`
}

// NewEntryPostedEvent creates a new EntryPostedEvent
func NewEntryPostedEvent(entry *JournalEntry) *EntryPostedEvent {
	return &EntryPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryPosted, AggregateTypeJournalEntry, entry.ID, entry.TenantID),
		EntryNumber:     entry.EntryNumber,
		EntryType:       entry.Type,
		TotalDebit:      entry.TotalDebit,
		SourceTxnID:     entry.SourceTxnID,
	}
}

// EntryReversedEvent is published when a posted entry is reversed
type EntryReversedEvent struct {
	shared.BaseDomainEvent
	EntryNumber string `json:"entry_number"`
}

// NewEntryReversedEvent creates a new EntryReversedEvent
func NewEntryReversedEvent(entry *JournalEntry) *EntryReversedEvent {
	return &EntryReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntryReversed, AggregateTypeJournalEntry, entry.ID, entry.TenantID),
		EntryNumber:     entry.EntryNumber,
	}
}
