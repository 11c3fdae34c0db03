package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/exchange"
)

// CreateTransactionInput initiates a money movement. CustomerID may be
// left empty by customers, who always transact for themselves.
// CounterpartyUserID names the recipient of a transfer.
type CreateTransactionInput struct {
	Type               exchange.TransactionType
	CustomerID         uuid.UUID
	CounterpartyUserID *uuid.UUID
	FromCurrency       string
	ToCurrency         string
	Amount             decimal.Decimal
	Description        string
	IdempotencyKey     string
	CorrelationID      *uuid.UUID
}

// PublishRateInput publishes a new rate for a pair
type PublishRateInput struct {
	FromCurrency  string
	ToCurrency    string
	BuyRate       decimal.Decimal
	SellRate      decimal.Decimal
	Source        exchange.RateSource
	EffectiveFrom time.Time
}

// QuoteInput requests a priced quote without creating a transaction
type QuoteInput struct {
	FromCurrency string
	ToCurrency   string
	Amount       decimal.Decimal
}

// CancelInput cancels a non-terminal transaction
type CancelInput struct {
	TransactionID uuid.UUID
	Reason        string
}

// ReviewInput resolves an on-hold transaction
type ReviewInput struct {
	TransactionID uuid.UUID
	Approve       bool
	Reason        string
}
