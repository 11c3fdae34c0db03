package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/domain/shared/valueobject"
)

// AccountType classifies an account within the tenant's chart
type AccountType string

const (
	AccountTypeCash           AccountType = "cash"
	AccountTypeBank           AccountType = "bank"
	AccountTypeCrypto         AccountType = "crypto"
	AccountTypeCommission     AccountType = "commission"
	AccountTypeFee            AccountType = "fee"
	AccountTypeSuspense       AccountType = "suspense"
	AccountTypeClearing       AccountType = "clearing"
	AccountTypeInternal       AccountType = "internal"
	AccountTypeCustomerWallet AccountType = "customer_wallet"
)

// NormalSide is the side on which an account's balance grows
type NormalSide string

const (
	NormalSideDebit  NormalSide = "debit"
	NormalSideCredit NormalSide = "credit"
)

// NormalSideOf returns the normal side for an account type.
// Vault-style holdings grow on debit; customer wallets, suspense,
// clearing, liquidity positions and income accounts grow on credit.
func NormalSideOf(t AccountType) NormalSide {
	switch t {
	case AccountTypeCash, AccountTypeBank, AccountTypeCrypto:
		return NormalSideDebit
	default:
		return NormalSideCredit
	}
}

// AccountStatus represents the lifecycle status of an account
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// Account is a per-(tenant, owner, currency, type) ledger account.
// Balance mutations go through the methods below; the repository
// persists them with a compare-and-set on Version.
//
// Invariant held by every mutation: Available() = Balance - Frozen >= 0
// and Balance >= 0.
type Account struct {
	shared.TenantAggregateRoot
	AccountNumber string        `gorm:"type:varchar(40);not null;uniqueIndex"`
	OwnerUserID   uuid.UUID     `gorm:"type:uuid;not null;index"`
	Currency      string        `gorm:"type:varchar(10);not null"`
	Type          AccountType   `gorm:"type:varchar(20);not null"`
	Status        AccountStatus `gorm:"type:varchar(20);not null;default:'active'"`
	Balance       decimal.Decimal
	Frozen        decimal.Decimal
	Pending       decimal.Decimal
	MinBalance    *decimal.Decimal
	MaxBalance    *decimal.Decimal
	AllowDebit    bool `gorm:"not null;default:true"`
	AllowCredit   bool `gorm:"not null;default:true"`
	ClosedAt      *time.Time
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "ledger_accounts"
}

// NewAccount opens a new active account with zero balances.
func NewAccount(tenantID, ownerUserID uuid.UUID, currency string, accountType AccountType) (*Account, error) {
	if !valueobject.IsSupportedCurrency(currency) {
		return nil, shared.NewDomainError("UNSUPPORTED_CURRENCY", fmt.Sprintf("currency %s is not supported", currency))
	}
	if err := validateAccountType(accountType); err != nil {
		return nil, err
	}
	if ownerUserID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_OWNER", "Account owner is required")
	}

	account := &Account{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		OwnerUserID:         ownerUserID,
		Currency:            currency,
		Type:                accountType,
		Status:              AccountStatusActive,
		Balance:             decimal.Zero,
		Frozen:              decimal.Zero,
		Pending:             decimal.Zero,
		AllowDebit:          true,
		AllowCredit:         true,
	}
	account.AccountNumber = generateAccountNumber(account.ID)

	account.AddDomainEvent(NewAccountOpenedEvent(account))

	return account, nil
}

// generateAccountNumber derives a globally unique account number from
// the account's UUID.
func generateAccountNumber(id uuid.UUID) string {
	return fmt.Sprintf("ACC-%08X%08X", id[0:4], id[4:8])
}

// Available returns the balance not held by reservations.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.Frozen)
}

// NormalSide returns the side on which this account's balance grows.
func (a *Account) NormalSide() NormalSide {
	return NormalSideOf(a.Type)
}

// IsActive reports whether the account accepts postings
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// IsPostable reports whether journal lines may target the account
func (a *Account) IsPostable() bool {
	return a.Status == AccountStatusActive
}

// Reserve moves amount from available into frozen.
func (a *Account) Reserve(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Reserve amount must be positive")
	}
	if a.Status != AccountStatusActive {
		return shared.NewDomainError("ACCOUNT_NOT_ACTIVE", "Account is not active")
	}
	if !a.AllowDebit {
		return shared.NewDomainError("DEBIT_NOT_ALLOWED", "Account does not allow debits")
	}
	if a.Available().LessThan(amount) {
		return shared.ErrInsufficientFunds
	}

	a.Frozen = a.Frozen.Add(amount)
	a.touch()

	a.AddDomainEvent(NewBalanceChangedEvent(a, BalanceChangeReserve, amount))

	return nil
}

// Release returns up to amount from frozen back to available.
// Releasing more than is frozen releases everything; release is always
// safe to retry.
func (a *Account) Release(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "Release amount cannot be negative")
	}

	released := decimal.Min(amount, a.Frozen)
	if released.IsZero() {
		return nil
	}

	a.Frozen = a.Frozen.Sub(released)
	a.touch()

	a.AddDomainEvent(NewBalanceChangedEvent(a, BalanceChangeRelease, released))

	return nil
}

// SettleDebit consumes a prior reservation, reducing balance and frozen
// together. Requires the amount to be fully reserved.
func (a *Account) SettleDebit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Settlement amount must be positive")
	}
	if a.Frozen.LessThan(amount) {
		return shared.NewDomainError("RESERVATION_MISSING", "Settlement exceeds reserved amount")
	}

	a.Balance = a.Balance.Sub(amount)
	a.Frozen = a.Frozen.Sub(amount)
	a.touch()

	a.AddDomainEvent(NewBalanceChangedEvent(a, BalanceChangeSettleDebit, amount))

	return nil
}

// Debit reduces the balance without a prior reservation. Used when the
// journal engine applies a balance-reducing line to an account that was
// not part of the reservation path.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Debit amount must be positive")
	}
	if a.Status != AccountStatusActive {
		return shared.NewDomainError("ACCOUNT_NOT_ACTIVE", "Account is not active")
	}
	if !a.AllowDebit {
		return shared.NewDomainError("DEBIT_NOT_ALLOWED", "Account does not allow debits")
	}
	if a.Available().LessThan(amount) {
		return shared.ErrInsufficientFunds
	}

	a.Balance = a.Balance.Sub(amount)
	a.touch()

	a.AddDomainEvent(NewBalanceChangedEvent(a, BalanceChangeDebit, amount))

	return nil
}

// Credit increases the balance.
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	if a.Status != AccountStatusActive {
		return shared.NewDomainError("ACCOUNT_NOT_ACTIVE", "Account is not active")
	}
	if !a.AllowCredit {
		return shared.NewDomainError("CREDIT_NOT_ALLOWED", "Account does not allow credits")
	}
	if a.MaxBalance != nil && a.Balance.Add(amount).GreaterThan(*a.MaxBalance) {
		return shared.NewDomainError("MAX_BALANCE_EXCEEDED", "Credit would exceed the account's maximum balance")
	}

	a.Balance = a.Balance.Add(amount)
	a.touch()

	a.AddDomainEvent(NewBalanceChangedEvent(a, BalanceChangeCredit, amount))

	return nil
}

// Adjust applies a signed correction to the balance. The identity
// Balance >= Frozen >= 0 still holds afterwards; adjustments that would
// break it are refused.
func (a *Account) Adjust(delta decimal.Decimal, reason string) error {
	if delta.IsZero() {
		return shared.NewDomainError("INVALID_AMOUNT", "Adjustment delta cannot be zero")
	}
	if reason == "" {
		return shared.NewDomainError("REASON_REQUIRED", "Adjustment reason is required")
	}

	newBalance := a.Balance.Add(delta)
	if newBalance.LessThan(a.Frozen) {
		return shared.NewDomainError("INVALID_ADJUSTMENT", "Adjustment would take balance below the frozen amount")
	}

	a.Balance = newBalance
	a.touch()

	a.AddDomainEvent(NewAccountAdjustedEvent(a, delta, reason))

	return nil
}

// SetLimits replaces the optional min/max balance bounds and the
// posting-side flags in one version bump.
func (a *Account) SetLimits(min, max *decimal.Decimal, allowDebit, allowCredit bool) error {
	if min != nil && max != nil && min.GreaterThan(*max) {
		return shared.NewDomainError("INVALID_LIMITS", "Minimum balance cannot exceed maximum balance")
	}

	a.MinBalance = min
	a.MaxBalance = max
	a.AllowDebit = allowDebit
	a.AllowCredit = allowCredit
	a.touch()

	return nil
}

// Freeze blocks the account from any posting
func (a *Account) Freeze() error {
	if a.Status == AccountStatusClosed {
		return shared.NewDomainError("ACCOUNT_CLOSED", "Cannot freeze a closed account")
	}
	if a.Status == AccountStatusFrozen {
		return shared.NewDomainError("ALREADY_FROZEN", "Account is already frozen")
	}

	a.Status = AccountStatusFrozen
	a.touch()

	a.AddDomainEvent(NewAccountStatusChangedEvent(a, AccountStatusActive, AccountStatusFrozen))

	return nil
}

// Unfreeze restores a frozen account to active
func (a *Account) Unfreeze() error {
	if a.Status != AccountStatusFrozen {
		return shared.NewDomainError("NOT_FROZEN", "Account is not frozen")
	}

	a.Status = AccountStatusActive
	a.touch()

	a.AddDomainEvent(NewAccountStatusChangedEvent(a, AccountStatusFrozen, AccountStatusActive))

	return nil
}

// Close closes the account. Requires all balances at zero.
func (a *Account) Close() error {
	if a.Status == AccountStatusClosed {
		return shared.NewDomainError("ALREADY_CLOSED", "Account is already closed")
	}
	if a.Status == AccountStatusFrozen {
		return shared.NewDomainError("ACCOUNT_FROZEN", "Unfreeze the account before closing")
	}
	if !a.Balance.IsZero() || !a.Frozen.IsZero() || !a.Pending.IsZero() {
		return shared.NewDomainError("BALANCE_NOT_ZERO", "Account balances must be zero before closing")
	}

	now := time.Now()
	a.Status = AccountStatusClosed
	a.ClosedAt = &now
	a.touch()

	a.AddDomainEvent(NewAccountStatusChangedEvent(a, AccountStatusActive, AccountStatusClosed))

	return nil
}

// CheckIntegrity verifies the balance identity. A violation is fatal
// for the tenant's ledger.
func (a *Account) CheckIntegrity() error {
	if a.Balance.IsNegative() {
		return shared.NewDomainError("INTEGRITY_VIOLATION", fmt.Sprintf("account %s has negative balance", a.AccountNumber))
	}
	if a.Frozen.IsNegative() {
		return shared.NewDomainError("INTEGRITY_VIOLATION", fmt.Sprintf("account %s has negative frozen amount", a.AccountNumber))
	}
	if a.Available().IsNegative() {
		return shared.NewDomainError("INTEGRITY_VIOLATION", fmt.Sprintf("account %s frozen exceeds balance", a.AccountNumber))
	}
	return nil
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
}

func validateAccountType(t AccountType) error {
	switch t {
	case AccountTypeCash, AccountTypeBank, AccountTypeCrypto, AccountTypeCommission,
		AccountTypeFee, AccountTypeSuspense, AccountTypeClearing, AccountTypeInternal,
		AccountTypeCustomerWallet:
		return nil
	default:
		return shared.NewDomainError("INVALID_ACCOUNT_TYPE", "Invalid account type")
	}
}
