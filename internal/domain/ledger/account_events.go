package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
)

// Aggregate type constant for Account
const AggregateTypeAccount = "Account"

// Account domain event types
const (
	EventTypeAccountOpened        = "AccountOpened"
	EventTypeAccountStatusChanged = "AccountStatusChanged"
	EventTypeAccountAdjusted      = "AccountAdjusted"
	EventTypeBalanceChanged       = "BalanceChanged"
)

// BalanceChangeKind names the balance-engine operation that produced a
// balance change
type BalanceChangeKind string

const (
	BalanceChangeReserve     BalanceChangeKind = "reserve"
	BalanceChangeRelease     BalanceChangeKind = "release"
	BalanceChangeSettleDebit BalanceChangeKind = "settle_debit"
	BalanceChangeDebit       BalanceChangeKind = "debit"
	BalanceChangeCredit      BalanceChangeKind = "credit"
)

// AccountOpenedEvent is published when an account is opened
type AccountOpenedEvent struct {
	shared.BaseDomainEvent
	AccountNumber string      `json:"account_number"`
	Currency      string      `json:"currency"`
	AccountType   AccountType `json:"account_type"`
}

// NewAccountOpenedEvent creates a new AccountOpenedEvent
func NewAccountOpenedEvent(account *Account) *AccountOpenedEvent {
	return &AccountOpenedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAccountOpened, AggregateTypeAccount, account.ID, account.TenantID),
		AccountNumber:   account.AccountNumber,
		Currency:        account.Currency,
		AccountType:     account.Type,
	}
}

// AccountStatusChangedEvent is published on freeze, unfreeze and close
type AccountStatusChangedEvent struct {
	shared.BaseDomainEvent
	AccountNumber string        `json:"account_number"`
	OldStatus     AccountStatus `json:"old_status"`
	NewStatus     AccountStatus `json:"new_status"`
}

// NewAccountStatusChangedEvent creates a new AccountStatusChangedEvent
func NewAccountStatusChangedEvent(account *Account, oldStatus, newStatus AccountStatus) *AccountStatusChangedEvent {
	return &AccountStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAccountStatusChanged, AggregateTypeAccount, account.ID, account.TenantID),
		AccountNumber:   account.AccountNumber,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// AccountAdjustedEvent is published when a manual balance adjustment is
// applied. Adjustments are audited at high risk.
type AccountAdjustedEvent struct {
	shared.BaseDomainEvent
	AccountNumber string          `json:"account_number"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

// NewAccountAdjustedEvent creates a new AccountAdjustedEvent
func NewAccountAdjustedEvent(account *Account, delta decimal.Decimal, reason string) *AccountAdjustedEvent {
	return &AccountAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAccountAdjusted, AggregateTypeAccount, account.ID, account.TenantID),
		AccountNumber:   account.AccountNumber,
		Delta:           delta,
		Reason:          reason,
		NewBalance:      account.Balance,
	}
}

// BalanceChangedEvent is published for every balance-engine mutation
type BalanceChangedEvent struct {
	shared.BaseDomainEvent
	AccountNumber string            `json:"account_number"`
	Kind          BalanceChangeKind `json:"kind"`
	Amount        decimal.Decimal   `json:"amount"`
	Balance       decimal.Decimal   `json:"balance"`
	Frozen        decimal.Decimal   `json:"frozen"`
}

// NewBalanceChangedEvent creates a new BalanceChangedEvent
func NewBalanceChangedEvent(account *Account, kind BalanceChangeKind, amount decimal.Decimal) *BalanceChangedEvent {
	return &BalanceChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBalanceChanged, AggregateTypeAccount, account.ID, account.TenantID),
		AccountNumber:   account.AccountNumber,
		Kind:            kind,
		Amount:          amount,
		Balance:         account.Balance,
		Frozen:          account.Frozen,
	}
}
