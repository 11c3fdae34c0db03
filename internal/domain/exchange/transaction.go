package exchange

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/domain/shared/valueobject"
)

// TransactionType classifies a money movement
type TransactionType string

const (
	TxnTypeExchange         TransactionType = "exchange"
	TxnTypeDeposit          TransactionType = "deposit"
	TxnTypeWithdrawal       TransactionType = "withdrawal"
	TxnTypeTransfer         TransactionType = "transfer"
	TxnTypeRemittanceSend   TransactionType = "remittance_send"
	TxnTypeRemittanceRecv   TransactionType = "remittance_receive"
)

// TransactionStatus is the orchestrator state of a transaction
type TransactionStatus string

const (
	TxnStatusPending    TransactionStatus = "pending"    // initiated, not yet validated
	TxnStatusVerified   TransactionStatus = "verified"   // validation passed
	TxnStatusApproved   TransactionStatus = "approved"   // approval granted
	TxnStatusProcessing TransactionStatus = "processing" // funds reserved
	TxnStatusSettled    TransactionStatus = "settled"    // journal entry posted
	TxnStatusCompleted  TransactionStatus = "completed"  // terminal
	TxnStatusFailed     TransactionStatus = "failed"     // terminal
	TxnStatusCancelled  TransactionStatus = "cancelled"  // terminal
	TxnStatusOnHold     TransactionStatus = "on_hold"
	TxnStatusRejected   TransactionStatus = "rejected" // terminal
)

// IsTerminal reports whether no further transition may leave the status
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxnStatusCompleted, TxnStatusFailed, TxnStatusCancelled, TxnStatusRejected:
		return true
	}
	return false
}

// WorkflowStage tracks how far along the processing pipeline the
// transaction has travelled; unlike status it never moves backwards.
type WorkflowStage string

const (
	StageInitiated WorkflowStage = "initiated"
	StageVerified  WorkflowStage = "verified"
	StageApproved  WorkflowStage = "approved"
	StageProcessed WorkflowStage = "processed"
	StageSettled   WorkflowStage = "settled"
	StageCompleted WorkflowStage = "completed"
)

// StatusChange is one element of the append-only status history
type StatusChange struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TxnID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	From      TransactionStatus `gorm:"type:varchar(20);not null"`
	To        TransactionStatus `gorm:"type:varchar(20);not null"`
	Reason    string            `gorm:"type:varchar(500)"`
	ActorID   *uuid.UUID        `gorm:"type:uuid"`
	ChangedAt time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StatusChange) TableName() string {
	return "transaction_status_history"
}

// Transaction is the orchestrated money movement. Transitions follow a
// fixed state machine; every transition appends to StatusHistory and
// bumps the aggregate version.
type Transaction struct {
	shared.TenantAggregateRoot
	Reference        string          `gorm:"type:varchar(40);not null;uniqueIndex:idx_txn_tenant_ref"`
	Type             TransactionType `gorm:"type:varchar(30);not null"`
	CustomerID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	FromAccountID    *uuid.UUID      `gorm:"type:uuid"`
	ToAccountID      *uuid.UUID      `gorm:"type:uuid"`
	FromCurrency     string          `gorm:"type:varchar(10);not null"`
	ToCurrency       string          `gorm:"type:varchar(10);not null"`
	Amount           decimal.Decimal `gorm:"not null"`
	QuotedRate       decimal.Decimal
	EquivalentAmount decimal.Decimal
	Commission       decimal.Decimal
	Fees             decimal.Decimal
	NetAmount        decimal.Decimal
	Status           TransactionStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	Stage            WorkflowStage     `gorm:"type:varchar(20);not null;default:'initiated'"`
	JournalEntryID   *uuid.UUID        `gorm:"type:uuid;index"`
	ValueDate        *time.Time
	ProcessedAt      *time.Time
	RiskScore        int
	ComplianceFlags  []string `gorm:"serializer:json"`
	InitiatorID      uuid.UUID  `gorm:"type:uuid;not null"`
	ApproverID       *uuid.UUID `gorm:"type:uuid"`
	ProcessorID      *uuid.UUID `gorm:"type:uuid"`
	StatusHistory    []StatusChange `gorm:"foreignKey:TxnID"`
	RetryCount       int
	ErrorCode        string `gorm:"type:varchar(50)"`
	// IdempotencyKey deduplicates client retries of create; PayloadHash
	// detects a different payload reusing the same key.
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:idx_txn_tenant_idem"`
	PayloadHash    string  `gorm:"type:varchar(64)"`
	// CorrelationID pairs remittance send/receive legs across tenants
	CorrelationID *uuid.UUID `gorm:"type:uuid;index"`
	ReconciledAt  *time.Time
	Description   string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}

// NewTransactionInput carries the create payload
type NewTransactionInput struct {
	Type           TransactionType
	CustomerID     uuid.UUID
	FromCurrency   string
	ToCurrency     string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	CorrelationID  *uuid.UUID
}

// PayloadHash returns the canonical hash of the create payload, used to
// detect idempotency-key reuse with a different payload.
func (in NewTransactionInput) PayloadHash() string {
	payload := struct {
		Type         TransactionType `json:"type"`
		CustomerID   uuid.UUID       `json:"customer_id"`
		FromCurrency string          `json:"from_currency"`
		ToCurrency   string          `json:"to_currency"`
		Amount       string          `json:"amount"`
	}{in.Type, in.CustomerID, in.FromCurrency, in.ToCurrency, in.Amount.String()}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NewTransaction creates a transaction in the initial pending state.
func NewTransaction(tenantID, initiatorID uuid.UUID, in NewTransactionInput) (*Transaction, error) {
	if err := validateTxnType(in.Type); err != nil {
		return nil, err
	}
	if in.CustomerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer is required")
	}
	if !in.Amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	}
	if !valueobject.IsSupportedCurrency(in.FromCurrency) || !valueobject.IsSupportedCurrency(in.ToCurrency) {
		return nil, shared.NewDomainError("UNSUPPORTED_CURRENCY", "Transaction currency is not supported")
	}

	txn := &Transaction{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, initiatorID),
		Type:                in.Type,
		CustomerID:          in.CustomerID,
		FromCurrency:        in.FromCurrency,
		ToCurrency:          in.ToCurrency,
		Amount:              in.Amount,
		Status:              TxnStatusPending,
		Stage:               StageInitiated,
		InitiatorID:         initiatorID,
		Description:         in.Description,
		PayloadHash:         in.PayloadHash(),
		CorrelationID:       in.CorrelationID,
	}
	txn.Reference = generateReference(txn.ID)
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	txn.StatusHistory = append(txn.StatusHistory, StatusChange{
		ID:        uuid.New(),
		TxnID:     txn.ID,
		From:      "",
		To:        TxnStatusPending,
		Reason:    "created",
		ActorID:   &initiatorID,
		ChangedAt: time.Now(),
	})

	txn.AddDomainEvent(NewTransactionCreatedEvent(txn))

	return txn, nil
}

func generateReference(id uuid.UUID) string {
	return fmt.Sprintf("TXN-%08X%08X", id[0:4], id[4:8])
}

// transition performs a checked state change and records history.
func (t *Transaction) transition(to TransactionStatus, reason string, actor *uuid.UUID) error {
	if t.Status.IsTerminal() {
		return shared.NewDomainError("STATE_CONFLICT", fmt.Sprintf("transaction is already %s", t.Status))
	}

	from := t.Status
	t.Status = to
	t.StatusHistory = append(t.StatusHistory, StatusChange{
		ID:        uuid.New(),
		TxnID:     t.ID,
		From:      from,
		To:        to,
		Reason:    reason,
		ActorID:   actor,
		ChangedAt: time.Now(),
	})
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	t.AddDomainEvent(NewTransactionStatusChangedEvent(t, from, to, reason))

	return nil
}

// MarkVerified records a passed validation along with pricing figures.
func (t *Transaction) MarkVerified(rate, equivalent, commission, fees decimal.Decimal) error {
	if t.Status != TxnStatusPending {
		return shared.NewDomainError("STATE_CONFLICT", "Only pending transactions can be verified")
	}

	t.QuotedRate = rate
	t.EquivalentAmount = equivalent
	t.Commission = commission
	t.Fees = fees
	t.NetAmount = t.Amount.Sub(commission).Sub(fees)
	t.Stage = StageVerified

	return t.transition(TxnStatusVerified, "validation passed", nil)
}

// MarkApproved records approval by rule or by an operator.
func (t *Transaction) MarkApproved(approver *uuid.UUID) error {
	if t.Status != TxnStatusVerified {
		return shared.NewDomainError("STATE_CONFLICT", "Only verified transactions can be approved")
	}

	t.ApproverID = approver
	t.Stage = StageApproved

	return t.transition(TxnStatusApproved, "approved", approver)
}

// MarkProcessing records a successful reservation of the debit funds.
func (t *Transaction) MarkProcessing(processor *uuid.UUID) error {
	if t.Status != TxnStatusApproved {
		return shared.NewDomainError("STATE_CONFLICT", "Only approved transactions can start processing")
	}

	t.ProcessorID = processor
	t.Stage = StageProcessed

	return t.transition(TxnStatusProcessing, "funds reserved", processor)
}

// MarkSettled records the posted journal entry.
func (t *Transaction) MarkSettled(journalEntryID uuid.UUID) error {
	if t.Status != TxnStatusProcessing {
		return shared.NewDomainError("STATE_CONFLICT", "Only processing transactions can settle")
	}
	if journalEntryID == uuid.Nil {
		return shared.NewDomainError("INVALID_ENTRY", "Journal entry is required to settle")
	}

	t.JournalEntryID = &journalEntryID
	t.Stage = StageSettled
	now := time.Now()
	t.ProcessedAt = &now

	return t.transition(TxnStatusSettled, "journal entry posted", nil)
}

// MarkCompleted finalizes a settled transaction.
func (t *Transaction) MarkCompleted() error {
	if t.Status != TxnStatusSettled {
		return shared.NewDomainError("STATE_CONFLICT", "Only settled transactions can complete")
	}

	t.Stage = StageCompleted

	return t.transition(TxnStatusCompleted, "finalized", nil)
}

// MarkFailed moves the transaction to the failed terminal state with an
// error code. Allowed from any non-terminal state.
func (t *Transaction) MarkFailed(errorCode, reason string) error {
	if t.Status.IsTerminal() {
		return shared.NewDomainError("STATE_CONFLICT", "Transaction is already terminal")
	}

	t.ErrorCode = errorCode

	return t.transition(TxnStatusFailed, reason, nil)
}

// Cancel moves any non-terminal transaction to cancelled. Reservations
// are released by the orchestrator before calling this.
func (t *Transaction) Cancel(actor *uuid.UUID, reason string) error {
	if t.Status.IsTerminal() {
		return shared.NewDomainError("STATE_CONFLICT", "Transaction is already terminal")
	}
	if t.Status == TxnStatusSettled {
		return shared.NewDomainError("STATE_CONFLICT", "Settled transactions cannot be cancelled; reverse the journal entry instead")
	}

	return t.transition(TxnStatusCancelled, reason, actor)
}

// Hold parks a verified transaction for manual review.
func (t *Transaction) Hold(actor *uuid.UUID, reason string) error {
	if t.Status != TxnStatusVerified {
		return shared.NewDomainError("STATE_CONFLICT", "Only verified transactions can be put on hold")
	}

	return t.transition(TxnStatusOnHold, reason, actor)
}

// Resume returns an on-hold transaction to verified.
func (t *Transaction) Resume(actor *uuid.UUID) error {
	if t.Status != TxnStatusOnHold {
		return shared.NewDomainError("STATE_CONFLICT", "Only on-hold transactions can resume")
	}

	return t.transition(TxnStatusVerified, "resumed", actor)
}

// Reject moves an on-hold transaction to the rejected terminal state.
func (t *Transaction) Reject(actor *uuid.UUID, reason string) error {
	if t.Status != TxnStatusOnHold {
		return shared.NewDomainError("STATE_CONFLICT", "Only on-hold transactions can be rejected")
	}

	return t.transition(TxnStatusRejected, reason, actor)
}

// SetAccounts records the resolved debit and credit accounts
func (t *Transaction) SetAccounts(fromAccountID, toAccountID *uuid.UUID) {
	t.FromAccountID = fromAccountID
	t.ToAccountID = toAccountID
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// FlagCompliance appends a compliance flag and raises the risk score
func (t *Transaction) FlagCompliance(flag string, riskDelta int) {
	t.ComplianceFlags = append(t.ComplianceFlags, flag)
	t.RiskScore += riskDelta
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// RecordRetry increments the retry counter
func (t *Transaction) RecordRetry() {
	t.RetryCount++
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// MarkReconciled stamps a remittance leg as reconciled with its pair
func (t *Transaction) MarkReconciled() error {
	if t.CorrelationID == nil {
		return shared.NewDomainError("NOT_REMITTANCE", "Transaction has no correlation id")
	}
	if t.ReconciledAt != nil {
		return shared.NewDomainError("ALREADY_RECONCILED", "Transaction is already reconciled")
	}

	now := time.Now()
	t.ReconciledAt = &now
	t.UpdatedAt = now
	t.IncrementVersion()

	return nil
}

// GrossDebit is the total the debit side must cover: amount plus
// commission plus fees.
func (t *Transaction) GrossDebit() decimal.Decimal {
	return t.Amount.Add(t.Commission).Add(t.Fees)
}

// IsCrossCurrency reports whether the legs span two currencies
func (t *Transaction) IsCrossCurrency() bool {
	return t.FromCurrency != t.ToCurrency
}

func validateTxnType(tt TransactionType) error {
	switch tt {
	case TxnTypeExchange, TxnTypeDeposit, TxnTypeWithdrawal, TxnTypeTransfer,
		TxnTypeRemittanceSend, TxnTypeRemittanceRecv:
		return nil
	default:
		return shared.NewDomainError("INVALID_TXN_TYPE", "Invalid transaction type")
	}
}
