package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/ledger"
)

// OpenAccountInput opens (or returns) an account for an owner
type OpenAccountInput struct {
	OwnerUserID uuid.UUID
	Currency    string
	Type        ledger.AccountType
}

// SetAccountLimitsInput replaces an account's balance bounds and
// posting flags
type SetAccountLimitsInput struct {
	MinBalance  *decimal.Decimal
	MaxBalance  *decimal.Decimal
	AllowDebit  bool
	AllowCredit bool
}

// AdjustInput applies a manual signed correction to an account
type AdjustInput struct {
	AccountID uuid.UUID
	Delta     decimal.Decimal
	Reason    string
}

// BalanceOpInput is the common shape of reserve/release/settle/credit
type BalanceOpInput struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// LineInput is one leg of a posting request
type LineInput struct {
	AccountID          uuid.UUID
	Side               ledger.LineSide
	Amount             decimal.Decimal
	Currency           string
	ExchangeRateToBase decimal.Decimal
	Description        string
}

// PostEntryInput creates and posts a balanced entry in one atomic unit.
// SettleReservations names accounts whose decreasing legs consume
// previously frozen funds instead of free balance.
type PostEntryInput struct {
	Description        string
	Type               ledger.JournalEntryType
	EntryDate          time.Time
	SourceTxnID        *uuid.UUID
	Lines              []LineInput
	SettleReservations map[uuid.UUID]decimal.Decimal
}

// ReverseEntryInput reverses a posted entry
type ReverseEntryInput struct {
	EntryID uuid.UUID
	Reason  string
}

// TrialBalanceInput selects the as-of moment
type TrialBalanceInput struct {
	AsOf time.Time
}
