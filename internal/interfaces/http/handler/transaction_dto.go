package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/exchange"
)

// CreateTransactionRequest represents a request to initiate a money
// movement. Customers always transact for themselves; staff name the
// customer explicitly.
type CreateTransactionRequest struct {
	Type               string          `json:"type" binding:"required,oneof=exchange deposit withdrawal transfer remittance_send remittance_receive"`
	TenantID           *string         `json:"tenant_id" binding:"omitempty,uuid"`
	CustomerID         string          `json:"customer_id" binding:"omitempty,uuid"`
	CounterpartyUserID *string         `json:"counterparty_user_id" binding:"omitempty,uuid"`
	FromCurrency       string          `json:"from_currency" binding:"required,len=3"`
	ToCurrency         string          `json:"to_currency" binding:"required,len=3"`
	Amount             decimal.Decimal `json:"amount" binding:"required"`
	Description        string          `json:"description" binding:"max=500"`
	CorrelationID      *string         `json:"correlation_id" binding:"omitempty,uuid"`
}

// ReviewTransactionRequest resolves an on-hold transaction
type ReviewTransactionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason" binding:"required,min=3,max=500"`
}

// CancelTransactionRequest cancels a non-terminal transaction
type CancelTransactionRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// ListTransactionsRequest represents transaction list query parameters
type ListTransactionsRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=pending verified approved processing settled completed failed cancelled on_hold rejected"`
	Type     string `form:"type" binding:"omitempty,oneof=exchange deposit withdrawal transfer remittance_send remittance_receive"`
	Currency string `form:"currency" binding:"omitempty,len=3"`
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
	Search   string `form:"search"`
}

// StatusChangeResponse is one transition in a transaction's history
type StatusChangeResponse struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Reason    string     `json:"reason,omitempty"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	ChangedAt time.Time  `json:"changed_at"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID               uuid.UUID              `json:"id"`
	TenantID         uuid.UUID              `json:"tenant_id"`
	Reference        string                 `json:"reference"`
	Type             string                 `json:"type"`
	CustomerID       uuid.UUID              `json:"customer_id"`
	FromAccountID    *uuid.UUID             `json:"from_account_id,omitempty"`
	ToAccountID      *uuid.UUID             `json:"to_account_id,omitempty"`
	FromCurrency     string                 `json:"from_currency"`
	ToCurrency       string                 `json:"to_currency"`
	Amount           decimal.Decimal        `json:"amount"`
	QuotedRate       decimal.Decimal        `json:"quoted_rate"`
	EquivalentAmount decimal.Decimal        `json:"equivalent_amount"`
	Commission       decimal.Decimal        `json:"commission"`
	Fees             decimal.Decimal        `json:"fees"`
	NetAmount        decimal.Decimal        `json:"net_amount"`
	Status           string                 `json:"status"`
	Stage            string                 `json:"stage"`
	JournalEntryID   *uuid.UUID             `json:"journal_entry_id,omitempty"`
	ValueDate        *time.Time             `json:"value_date,omitempty"`
	ProcessedAt      *time.Time             `json:"processed_at,omitempty"`
	RiskScore        int                    `json:"risk_score"`
	ComplianceFlags  []string               `json:"compliance_flags,omitempty"`
	InitiatorID      uuid.UUID              `json:"initiator_id"`
	ApproverID       *uuid.UUID             `json:"approver_id,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	CorrelationID    *uuid.UUID             `json:"correlation_id,omitempty"`
	Description      string                 `json:"description,omitempty"`
	StatusHistory    []StatusChangeResponse `json:"status_history,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	Version          int                    `json:"version"`
}

func toTransactionResponse(t *exchange.Transaction) TransactionResponse {
	history := make([]StatusChangeResponse, 0, len(t.StatusHistory))
	for _, sc := range t.StatusHistory {
		history = append(history, StatusChangeResponse{
			From:      string(sc.From),
			To:        string(sc.To),
			Reason:    sc.Reason,
			ActorID:   sc.ActorID,
			ChangedAt: sc.ChangedAt,
		})
	}
	return TransactionResponse{
		ID:               t.ID,
		TenantID:         t.TenantID,
		Reference:        t.Reference,
		Type:             string(t.Type),
		CustomerID:       t.CustomerID,
		FromAccountID:    t.FromAccountID,
		ToAccountID:      t.ToAccountID,
		FromCurrency:     t.FromCurrency,
		ToCurrency:       t.ToCurrency,
		Amount:           t.Amount,
		QuotedRate:       t.QuotedRate,
		EquivalentAmount: t.EquivalentAmount,
		Commission:       t.Commission,
		Fees:             t.Fees,
		NetAmount:        t.NetAmount,
		Status:           string(t.Status),
		Stage:            string(t.Stage),
		JournalEntryID:   t.JournalEntryID,
		ValueDate:        t.ValueDate,
		ProcessedAt:      t.ProcessedAt,
		RiskScore:        t.RiskScore,
		ComplianceFlags:  t.ComplianceFlags,
		InitiatorID:      t.InitiatorID,
		ApproverID:       t.ApproverID,
		ErrorCode:        t.ErrorCode,
		CorrelationID:    t.CorrelationID,
		Description:      t.Description,
		StatusHistory:    history,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		Version:          t.Version,
	}
}

func toTransactionResponses(txns []*exchange.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	return out
}
