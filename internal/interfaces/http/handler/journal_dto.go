package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/ledger"
)

// JournalLineRequest is one leg of a posting request
type JournalLineRequest struct {
	AccountID          string          `json:"account_id" binding:"required,uuid"`
	Side               string          `json:"side" binding:"required,oneof=debit credit"`
	Amount             decimal.Decimal `json:"amount" binding:"required"`
	Currency           string          `json:"currency" binding:"required,len=3"`
	ExchangeRateToBase decimal.Decimal `json:"exchange_rate_to_base" binding:"required"`
	Description        string          `json:"description" binding:"max=500"`
}

// PostEntryRequest represents a request to post a balanced entry.
// SettleReservations maps account IDs to amounts whose decreasing legs
// consume previously frozen funds.
type PostEntryRequest struct {
	Description        string                     `json:"description" binding:"required,min=1,max=500"`
	Type               string                     `json:"type" binding:"required,oneof=exchange commission fee transfer adjustment reversal opening closing manual automatic"`
	EntryDate          *time.Time                 `json:"entry_date"`
	SourceTxnID        *string                    `json:"source_txn_id" binding:"omitempty,uuid"`
	Lines              []JournalLineRequest       `json:"lines" binding:"required,min=2,dive"`
	SettleReservations map[string]decimal.Decimal `json:"settle_reservations"`
}

// PeriodQuery selects an accounting period
type PeriodQuery struct {
	Year  int `form:"year" binding:"required,min=2000,max=2200"`
	Month int `form:"month" binding:"required,min=1,max=12"`
}

// ReverseEntryRequest represents a request to reverse a posted entry
type ReverseEntryRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// JournalLineResponse represents a journal line in API responses
type JournalLineResponse struct {
	ID                 uuid.UUID       `json:"id"`
	AccountID          uuid.UUID       `json:"account_id"`
	Side               string          `json:"side"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	ExchangeRateToBase decimal.Decimal `json:"exchange_rate_to_base"`
	Description        string          `json:"description,omitempty"`
}

// JournalEntryResponse represents a journal entry in API responses
type JournalEntryResponse struct {
	ID          uuid.UUID             `json:"id"`
	TenantID    uuid.UUID             `json:"tenant_id"`
	EntryNumber string                `json:"entry_number"`
	PeriodYear  int                   `json:"period_year"`
	PeriodMonth int                   `json:"period_month"`
	EntryDate   time.Time             `json:"entry_date"`
	Description string                `json:"description"`
	Type        string                `json:"type"`
	Status      string                `json:"status"`
	TotalDebit  decimal.Decimal       `json:"total_debit"`
	TotalCredit decimal.Decimal       `json:"total_credit"`
	SourceTxnID *uuid.UUID            `json:"source_txn_id,omitempty"`
	Lines       []JournalLineResponse `json:"lines"`
	PostedBy    *uuid.UUID            `json:"posted_by,omitempty"`
	PostedAt    *time.Time            `json:"posted_at,omitempty"`
	ReversedBy  *uuid.UUID            `json:"reversed_by,omitempty"`
	ReversedAt  *time.Time            `json:"reversed_at,omitempty"`
	ReversalOf  *uuid.UUID            `json:"reversal_of,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toJournalEntryResponses(entries []*ledger.JournalEntry) []JournalEntryResponse {
	out := make([]JournalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toJournalEntryResponse(e))
	}
	return out
}

func toJournalEntryResponse(e *ledger.JournalEntry) JournalEntryResponse {
	lines := make([]JournalLineResponse, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, JournalLineResponse{
			ID:                 l.ID,
			AccountID:          l.AccountID,
			Side:               string(l.Side),
			Amount:             l.Amount,
			Currency:           l.Currency,
			ExchangeRateToBase: l.ExchangeRateToBase,
			Description:        l.Description,
		})
	}
	return JournalEntryResponse{
		ID:          e.ID,
		TenantID:    e.TenantID,
		EntryNumber: e.EntryNumber,
		PeriodYear:  e.Period.Year,
		PeriodMonth: e.Period.Month,
		EntryDate:   e.EntryDate,
		Description: e.Description,
		Type:        string(e.Type),
		Status:      string(e.Status),
		TotalDebit:  e.TotalDebit,
		TotalCredit: e.TotalCredit,
		SourceTxnID: e.SourceTxnID,
		Lines:       lines,
		PostedBy:    e.PostedBy,
		PostedAt:    e.PostedAt,
		ReversedBy:  e.ReversedBy,
		ReversedAt:  e.ReversedAt,
		ReversalOf:  e.ReversalOf,
		CreatedAt:   e.CreatedAt,
	}
}
