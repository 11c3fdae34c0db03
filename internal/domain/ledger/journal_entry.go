package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/domain/shared/valueobject"
)

// JournalEntryType classifies a journal entry
type JournalEntryType string

const (
	EntryTypeExchange   JournalEntryType = "exchange"
	EntryTypeCommission JournalEntryType = "commission"
	EntryTypeFee        JournalEntryType = "fee"
	EntryTypeTransfer   JournalEntryType = "transfer"
	EntryTypeAdjustment JournalEntryType = "adjustment"
	EntryTypeReversal   JournalEntryType = "reversal"
	EntryTypeOpening    JournalEntryType = "opening"
	EntryTypeClosing    JournalEntryType = "closing"
	EntryTypeManual     JournalEntryType = "manual"
	EntryTypeAutomatic  JournalEntryType = "automatic"
)

// JournalEntryStatus represents the lifecycle status of an entry
type JournalEntryStatus string

const (
	EntryStatusDraft     JournalEntryStatus = "draft"
	EntryStatusPosted    JournalEntryStatus = "posted"
	EntryStatusReversed  JournalEntryStatus = "reversed"
	EntryStatusCancelled JournalEntryStatus = "cancelled"
)

// LineSide is the side of a journal line
type LineSide string

const (
	SideDebit  LineSide = "debit"
	SideCredit LineSide = "credit"
)

// JournalLine is one leg of a journal entry. Amount is always positive;
// Side carries the direction. ExchangeRateToBase converts the line's
// currency into the tenant's base currency for the cross-currency
// balance check.
type JournalLine struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EntryID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	Side               LineSide        `gorm:"type:varchar(10);not null"`
	Amount             decimal.Decimal `gorm:"not null"`
	Currency           string          `gorm:"type:varchar(10);not null"`
	ExchangeRateToBase decimal.Decimal `gorm:"not null"`
	Description        string          `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (JournalLine) TableName() string {
	return "journal_lines"
}

// BaseAmount returns the line amount converted to base currency at the
// line's recorded rate.
func (l JournalLine) BaseAmount() decimal.Decimal {
	return l.Amount.Mul(l.ExchangeRateToBase)
}

// NewJournalLine builds a validated journal line.
func NewJournalLine(accountID uuid.UUID, side LineSide, amount decimal.Decimal, currency string, rateToBase decimal.Decimal, description string) (JournalLine, error) {
	if accountID == uuid.Nil {
		return JournalLine{}, shared.NewDomainError("INVALID_LINE", "Line account is required")
	}
	if side != SideDebit && side != SideCredit {
		return JournalLine{}, shared.NewDomainError("INVALID_LINE", "Line side must be debit or credit")
	}
	if !amount.IsPositive() {
		return JournalLine{}, shared.NewDomainError("INVALID_LINE", "Line amount must be positive")
	}
	if !valueobject.IsSupportedCurrency(currency) {
		return JournalLine{}, shared.NewDomainError("UNSUPPORTED_CURRENCY", fmt.Sprintf("currency %s is not supported", currency))
	}
	if !rateToBase.IsPositive() {
		return JournalLine{}, shared.NewDomainError("INVALID_LINE", "Exchange rate to base must be positive")
	}

	return JournalLine{
		ID:                 uuid.New(),
		AccountID:          accountID,
		Side:               side,
		Amount:             amount,
		Currency:           currency,
		ExchangeRateToBase: rateToBase,
		Description:        description,
	}, nil
}

// Period identifies the accounting period of an entry
type Period struct {
	Year  int `gorm:"not null"`
	Month int `gorm:"not null"`
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// JournalEntry is a set of balanced lines posted atomically. Drafts are
// invisible to trial-balance queries; only posting assigns the entry
// number and moves balances.
type JournalEntry struct {
	shared.TenantAggregateRoot
	EntryNumber string             `gorm:"type:varchar(20);index"`
	Period      Period             `gorm:"embedded;embeddedPrefix:period_"`
	EntryDate   time.Time          `gorm:"not null;index"`
	Description string             `gorm:"type:varchar(500)"`
	Type        JournalEntryType   `gorm:"type:varchar(20);not null"`
	Status      JournalEntryStatus `gorm:"type:varchar(20);not null;default:'draft'"`
	// BookingCurrency is the currency the per-currency balance check is
	// anchored on; informational for single-currency entries.
	BookingCurrency string          `gorm:"type:varchar(10);not null"`
	TotalDebit      decimal.Decimal `gorm:"not null"`
	TotalCredit     decimal.Decimal `gorm:"not null"`
	SourceTxnID     *uuid.UUID      `gorm:"type:uuid;index"`
	Lines           []JournalLine   `gorm:"foreignKey:EntryID"`
	PostedBy        *uuid.UUID      `gorm:"type:uuid"`
	PostedAt        *time.Time
	ReversedBy      *uuid.UUID `gorm:"type:uuid"`
	ReversedAt      *time.Time
	ReversalOf      *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// baseTolerance is the cross-currency balance tolerance: one minor
// unit of the base currency.
func baseTolerance(baseCurrency string) decimal.Decimal {
	info, ok := valueobject.LookupCurrency(baseCurrency)
	if !ok {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -info.Scale)
}

// NewDraftEntry creates a draft journal entry. The draft is rejected
// unless every currency appearing in the lines balances exactly and the
// base-currency totals balance within one minor unit of baseCurrency.
func NewDraftEntry(tenantID uuid.UUID, entryType JournalEntryType, description string, sourceTxnID *uuid.UUID, baseCurrency string, createdBy uuid.UUID, lines []JournalLine) (*JournalEntry, error) {
	if err := validateEntryType(entryType); err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, shared.NewDomainError("UNBALANCED_ENTRY", "A journal entry needs at least two lines")
	}
	if !valueobject.IsSupportedCurrency(baseCurrency) {
		return nil, shared.NewDomainError("UNSUPPORTED_CURRENCY", "Base currency is not supported")
	}

	if err := checkBalanced(lines, baseCurrency); err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &JournalEntry{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		Period:              PeriodOf(now),
		EntryDate:           now,
		Description:         description,
		Type:                entryType,
		Status:              EntryStatusDraft,
		BookingCurrency:     lines[0].Currency,
		SourceTxnID:         sourceTxnID,
	}

	total := decimal.Zero
	for i := range lines {
		lines[i].EntryID = entry.ID
		if lines[i].Side == SideDebit {
			total = total.Add(lines[i].BaseAmount())
		}
	}
	entry.Lines = lines
	entry.TotalDebit = total
	entry.TotalCredit = total

	entry.AddDomainEvent(NewEntryDraftedEvent(entry))

	return entry, nil
}

// checkBalanced verifies per-currency equality and base-currency
// equality within tolerance.
func checkBalanced(lines []JournalLine, baseCurrency string) error {
	perCurrency := make(map[string]decimal.Decimal)
	baseNet := decimal.Zero

	for _, line := range lines {
		signed := line.Amount
		if line.Side == SideCredit {
			signed = signed.Neg()
		}
		perCurrency[line.Currency] = perCurrency[line.Currency].Add(signed)

		if line.Side == SideDebit {
			baseNet = baseNet.Add(line.BaseAmount())
		} else {
			baseNet = baseNet.Sub(line.BaseAmount())
		}
	}

	for currency, net := range perCurrency {
		if !net.IsZero() {
			return shared.NewDomainError("UNBALANCED_ENTRY", fmt.Sprintf("debits and credits differ by %s in %s", net.Abs(), currency))
		}
	}

	if baseNet.Abs().GreaterThan(baseTolerance(baseCurrency)) {
		return shared.NewDomainError("UNBALANCED_ENTRY", fmt.Sprintf("base-currency totals differ by %s %s", baseNet.Abs(), baseCurrency))
	}

	return nil
}

// MarkPosted transitions the draft to posted with its assigned entry
// number. Balance application is the journal service's job; this only
// records the transition.
func (e *JournalEntry) MarkPosted(entryNumber string, actor uuid.UUID) error {
	if e.Status != EntryStatusDraft {
		return shared.NewDomainError("STATE_CONFLICT", "Only draft entries can be posted")
	}
	if entryNumber == "" {
		return shared.NewDomainError("INVALID_ENTRY_NUMBER", "Entry number is required")
	}

	now := time.Now()
	e.EntryNumber = entryNumber
	e.Status = EntryStatusPosted
	e.PostedBy = &actor
	e.PostedAt = &now
	e.UpdatedAt = now
	e.IncrementVersion()

	e.AddDomainEvent(NewEntryPostedEvent(e))

	return nil
}

// MarkReversed stamps a posted entry as reversed, pointing nowhere; the
// reversal entry links back via ReversalOf.
func (e *JournalEntry) MarkReversed(actor uuid.UUID) error {
	if e.Status != EntryStatusPosted {
		return shared.NewDomainError("STATE_CONFLICT", "Only posted entries can be reversed")
	}

	now := time.Now()
	e.Status = EntryStatusReversed
	e.ReversedBy = &actor
	e.ReversedAt = &now
	e.UpdatedAt = now
	e.IncrementVersion()

	e.AddDomainEvent(NewEntryReversedEvent(e))

	return nil
}

// Cancel discards a draft entry
func (e *JournalEntry) Cancel() error {
	if e.Status != EntryStatusDraft {
		return shared.NewDomainError("STATE_CONFLICT", "Only draft entries can be cancelled")
	}

	e.Status = EntryStatusCancelled
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	return nil
}

// BuildReversal creates the compensating draft whose lines swap debit
// and credit of the original posted entry.
func (e *JournalEntry) BuildReversal(actor uuid.UUID, reason string, baseCurrency string) (*JournalEntry, error) {
	if e.Status != EntryStatusPosted {
		return nil, shared.NewDomainError("STATE_CONFLICT", "Only posted entries can be reversed")
	}
	if reason == "" {
		return nil, shared.NewDomainError("REASON_REQUIRED", "Reversal reason is required")
	}

	swapped := make([]JournalLine, 0, len(e.Lines))
	for _, line := range e.Lines {
		side := SideDebit
		if line.Side == SideDebit {
			side = SideCredit
		}
		rev, err := NewJournalLine(line.AccountID, side, line.Amount, line.Currency, line.ExchangeRateToBase, line.Description)
		if err != nil {
			return nil, err
		}
		swapped = append(swapped, rev)
	}

	reversal, err := NewDraftEntry(e.TenantID, EntryTypeReversal, fmt.Sprintf("Reversal of %s: %s", e.EntryNumber, reason), e.SourceTxnID, baseCurrency, actor, swapped)
	if err != nil {
		return nil, err
	}
	original := e.ID
	reversal.ReversalOf = &original

	return reversal, nil
}

// IsPosted reports whether the entry has been posted
func (e *JournalEntry) IsPosted() bool {
	return e.Status == EntryStatusPosted
}

// FormatEntryNumber renders the per-(tenant, year) sequence as the
// canonical entry number.
func FormatEntryNumber(year int, seq int64) string {
	return fmt.Sprintf("JE-%04d-%06d", year, seq)
}

func validateEntryType(t JournalEntryType) error {
	switch t {
	case EntryTypeExchange, EntryTypeCommission, EntryTypeFee, EntryTypeTransfer,
		EntryTypeAdjustment, EntryTypeReversal, EntryTypeOpening, EntryTypeClosing,
		EntryTypeManual, EntryTypeAutomatic:
		return nil
	default:
		return shared.NewDomainError("INVALID_ENTRY_TYPE", "Invalid journal entry type")
	}
}
