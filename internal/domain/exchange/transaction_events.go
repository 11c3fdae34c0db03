package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
)

const (
	TransactionAggregateType = "Transaction"
	RateAggregateType        = "ExchangeRate"

	TransactionCreatedEventType       = "transaction.created"
	TransactionStatusChangedEventType = "transaction.status_changed"
	RatePublishedEventType            = "rate.published"
)

// TransactionCreatedEvent fires when a transaction is initiated
type TransactionCreatedEvent struct {
	shared.BaseDomainEvent
	Reference    string          `json:"reference"`
	Type         TransactionType `json:"type"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
}

// NewTransactionCreatedEvent creates a transaction created event
func NewTransactionCreatedEvent(txn *Transaction) *TransactionCreatedEvent {
	return &TransactionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TransactionCreatedEventType, TransactionAggregateType, txn.ID, txn.TenantID),
		Reference:       txn.Reference,
		Type:            txn.Type,
		FromCurrency:    txn.FromCurrency,
		ToCurrency:      txn.ToCurrency,
		Amount:          txn.Amount,
	}
}

// TransactionStatusChangedEvent fires on every state transition
type TransactionStatusChangedEvent struct {
	shared.BaseDomainEvent
	Reference string            `json:"reference"`
	From      TransactionStatus `json:"from"`
	To        TransactionStatus `json:"to"`
	Reason    string            `json:"reason,omitempty"`
}

// NewTransactionStatusChangedEvent creates a status changed event
func NewTransactionStatusChangedEvent(txn *Transaction, from, to TransactionStatus, reason string) *TransactionStatusChangedEvent {
	return &TransactionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(TransactionStatusChangedEventType, TransactionAggregateType, txn.ID, txn.TenantID),
		Reference:       txn.Reference,
		From:            from,
		To:              to,
		Reason:          reason,
	}
}

// RatePublishedEvent fires when a new rate becomes effective
type RatePublishedEvent struct {
	shared.BaseDomainEvent
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	BuyRate      decimal.Decimal `json:"buy_rate"`
	SellRate     decimal.Decimal `json:"sell_rate"`
}

// NewRatePublishedEvent creates a rate published event
func NewRatePublishedEvent(rate *ExchangeRate) *RatePublishedEvent {
	return &RatePublishedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(RatePublishedEventType, RateAggregateType, rate.ID, rate.TenantID),
		FromCurrency:    rate.FromCurrency,
		ToCurrency:      rate.ToCurrency,
		BuyRate:         rate.BuyRate,
		SellRate:        rate.SellRate,
	}
}
