package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/ledger"
)

// OpenAccountRequest represents a request to open an account
type OpenAccountRequest struct {
	OwnerUserID string `json:"owner_user_id" binding:"omitempty,uuid"`
	Currency    string `json:"currency" binding:"required,len=3"`
	Type        string `json:"type" binding:"required,oneof=cash bank crypto commission suspense clearing internal customer_wallet"`
}

// AccountActionRequest carries the audit reason for freeze, unfreeze
// and close
type AccountActionRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// BalanceOpRequest represents a reserve, release, settle or credit
type BalanceOpRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Reference string          `json:"reference" binding:"required,min=1,max=100"`
}

// SetAccountLimitsRequest replaces the account's balance bounds and
// posting flags. Omitted bounds clear the limit.
type SetAccountLimitsRequest struct {
	MinBalance  *decimal.Decimal `json:"min_balance"`
	MaxBalance  *decimal.Decimal `json:"max_balance"`
	AllowDebit  *bool            `json:"allow_debit" binding:"required"`
	AllowCredit *bool            `json:"allow_credit" binding:"required"`
}

// AdjustRequest represents a manual signed balance correction
type AdjustRequest struct {
	Delta  decimal.Decimal `json:"delta" binding:"required"`
	Reason string          `json:"reason" binding:"required,min=3,max=500"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID            uuid.UUID        `json:"id"`
	TenantID      uuid.UUID        `json:"tenant_id"`
	AccountNumber string           `json:"account_number"`
	OwnerUserID   uuid.UUID        `json:"owner_user_id"`
	Currency      string           `json:"currency"`
	Type          string           `json:"type"`
	Status        string           `json:"status"`
	Balance       decimal.Decimal  `json:"balance"`
	Frozen        decimal.Decimal  `json:"frozen"`
	Pending       decimal.Decimal  `json:"pending"`
	Available     decimal.Decimal  `json:"available"`
	MinBalance    *decimal.Decimal `json:"min_balance,omitempty"`
	MaxBalance    *decimal.Decimal `json:"max_balance,omitempty"`
	AllowDebit    bool             `json:"allow_debit"`
	AllowCredit   bool             `json:"allow_credit"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int              `json:"version"`
}

func toAccountResponse(a *ledger.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		TenantID:      a.TenantID,
		AccountNumber: a.AccountNumber,
		OwnerUserID:   a.OwnerUserID,
		Currency:      a.Currency,
		Type:          string(a.Type),
		Status:        string(a.Status),
		Balance:       a.Balance,
		Frozen:        a.Frozen,
		Pending:       a.Pending,
		Available:     a.Available(),
		MinBalance:    a.MinBalance,
		MaxBalance:    a.MaxBalance,
		AllowDebit:    a.AllowDebit,
		AllowCredit:   a.AllowCredit,
		ClosedAt:      a.ClosedAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		Version:       a.Version,
	}
}

func toAccountResponses(accounts []*ledger.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}
