package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

// OrchestratorConfig tunes validation and approval
type OrchestratorConfig struct {
	// RateTolerance bounds how far an applied rate may drift outside
	// the published spread before validation fails.
	RateTolerance decimal.Decimal
	// ManualApprovalThreshold parks transactions at or above this
	// amount for review.
	ManualApprovalThreshold decimal.Decimal
	// HoldRiskScore parks transactions whose risk score reaches it.
	HoldRiskScore int
	// DailyCapWindow is the rolling window for the per-user cap.
	DailyCapWindow time.Duration
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		RateTolerance:           decimal.RequireFromString("0.01"),
		ManualApprovalThreshold: decimal.NewFromInt(10000),
		HoldRiskScore:           70,
		DailyCapWindow:          24 * time.Hour,
	}
}

// TransactionService drives the transaction state machine end to end:
// validate, approve, reserve, post, finalize. Each step persists its
// transition before the next runs, so a crash leaves a resumable row
// for the recovery scanner.
type TransactionService struct {
	txnRepo     exchange.TransactionRepository
	accountRepo ledger.AccountRepository
	userRepo    identity.UserRepository
	tenantRepo  identity.TenantRepository
	rates       *RateService
	balances    *appledger.BalanceService
	journal     *appledger.JournalService
	policy      exchange.CommissionPolicy
	config      OrchestratorConfig
	recorder    *appaudit.Recorder
	events      shared.EventPublisher
	logger      *zap.Logger
}

// NewTransactionService creates a new transaction orchestrator
func NewTransactionService(
	txnRepo exchange.TransactionRepository,
	accountRepo ledger.AccountRepository,
	userRepo identity.UserRepository,
	tenantRepo identity.TenantRepository,
	rates *RateService,
	balances *appledger.BalanceService,
	journal *appledger.JournalService,
	policy exchange.CommissionPolicy,
	config OrchestratorConfig,
	recorder *appaudit.Recorder,
	events shared.EventPublisher,
	logger *zap.Logger,
) *TransactionService {
	return &TransactionService{
		txnRepo:     txnRepo,
		accountRepo: accountRepo,
		userRepo:    userRepo,
		tenantRepo:  tenantRepo,
		rates:       rates,
		balances:    balances,
		journal:     journal,
		policy:      policy,
		config:      config,
		recorder:    recorder,
		events:      events,
		logger:      logger,
	}
}

// txnSaver persists a transaction with optimistic locking, tracking the
// last persisted version across the multiple in-memory mutations a
// pipeline step may apply.
type txnSaver struct {
	repo      exchange.TransactionRepository
	txn       *exchange.Transaction
	persisted int
	publish   func(context.Context, *exchange.Transaction)
}

func (s *txnSaver) save(ctx context.Context) error {
	if s.txn.Version == s.persisted {
		return nil
	}
	if err := s.repo.SaveWithLock(ctx, s.txn, s.persisted); err != nil {
		return err
	}
	s.persisted = s.txn.Version
	if s.publish != nil {
		s.publish(ctx, s.txn)
	}
	return nil
}

// Create initiates a transaction and drives it through the pipeline.
// An idempotency key makes the call safe to retry: the same key with
// the same payload returns the stored transaction without side effects.
func (s *TransactionService) Create(ctx context.Context, scope tenantctx.Scope, input CreateTransactionInput) (*exchange.Transaction, error) {
	if err := scope.Require(identity.CapTxnCreate); err != nil {
		return nil, err
	}

	customerID := input.CustomerID
	if scope.Role == identity.RoleCustomer || customerID == uuid.Nil {
		// customers always transact for themselves
		customerID = scope.UserID
	}

	domainInput := exchange.NewTransactionInput{
		Type:           input.Type,
		CustomerID:     customerID,
		FromCurrency:   input.FromCurrency,
		ToCurrency:     input.ToCurrency,
		Amount:         input.Amount,
		Description:    input.Description,
		IdempotencyKey: input.IdempotencyKey,
		CorrelationID:  input.CorrelationID,
	}

	if input.IdempotencyKey != "" {
		existing, err := s.txnRepo.FindByIdempotencyKey(ctx, scope.TenantID, input.IdempotencyKey)
		if err == nil && existing != nil {
			if existing.PayloadHash != domainInput.PayloadHash() {
				return nil, shared.NewDomainError("IDEMPOTENCY_CONFLICT", "Idempotency key was already used with a different payload")
			}
			return existing, nil
		}
	}

	txn, err := exchange.NewTransaction(scope.TenantID, scope.UserID, domainInput)
	if err != nil {
		return nil, err
	}

	if err := s.txnRepo.Create(ctx, txn); err != nil {
		// a concurrent retry may have won the unique idempotency index
		if input.IdempotencyKey != "" && shared.IsCode(err, "ALREADY_EXISTS") {
			return s.txnRepo.FindByIdempotencyKey(ctx, scope.TenantID, input.IdempotencyKey)
		}
		return nil, err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionTxnTransition).
		WithEntity("Transaction", txn.ID).
		WithChange(nil, map[string]any{"status": string(txn.Status), "reference": txn.Reference}))
	s.publishEvents(ctx, txn)

	saver := &txnSaver{repo: s.txnRepo, txn: txn, persisted: txn.Version, publish: s.publishEvents}
	return s.run(ctx, scope, saver, input.CounterpartyUserID)
}

// Review decides an on-hold transaction: approval resumes the
// pipeline, rejection terminates it.
func (s *TransactionService) Review(ctx context.Context, scope tenantctx.Scope, input ReviewInput) (*exchange.Transaction, error) {
	if err := scope.Require(identity.CapTxnApprove); err != nil {
		return nil, err
	}

	txn, err := s.txnRepo.FindByID(ctx, scope.TenantID, input.TransactionID)
	if err != nil {
		return nil, err
	}
	saver := &txnSaver{repo: s.txnRepo, txn: txn, persisted: txn.Version, publish: s.publishEvents}

	if !input.Approve {
		if err := txn.Reject(&scope.UserID, input.Reason); err != nil {
			return nil, err
		}
		if err := saver.save(ctx); err != nil {
			return nil, err
		}
		s.auditTransition(scope, txn, input.Reason)
		return txn, nil
	}

	if err := txn.Resume(&scope.UserID); err != nil {
		return nil, err
	}
	if err := txn.MarkApproved(&scope.UserID); err != nil {
		return nil, err
	}
	if err := saver.save(ctx); err != nil {
		return nil, err
	}

	return s.runFromApproved(ctx, scope, saver)
}

// Cancel stops a non-terminal transaction, releasing any reservation
func (s *TransactionService) Cancel(ctx context.Context, scope tenantctx.Scope, input CancelInput) (*exchange.Transaction, error) {
	if err := scope.Require(identity.CapTxnCancel); err != nil {
		return nil, err
	}

	txn, err := s.txnRepo.FindByID(ctx, scope.TenantID, input.TransactionID)
	if err != nil {
		return nil, err
	}
	// customers may only cancel their own transactions
	if scope.Role == identity.RoleCustomer && txn.CustomerID != scope.UserID {
		return nil, shared.ErrForbidden
	}
	saver := &txnSaver{repo: s.txnRepo, txn: txn, persisted: txn.Version, publish: s.publishEvents}

	if txn.Status == exchange.TxnStatusProcessing {
		s.releaseReservation(ctx, scope, txn)
	}

	if err := txn.Cancel(&scope.UserID, input.Reason); err != nil {
		return nil, err
	}
	if err := saver.save(ctx); err != nil {
		return nil, err
	}
	s.auditTransition(scope, txn, input.Reason)

	return txn, nil
}

// Get returns one transaction within the caller's tenant
func (s *TransactionService) Get(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*exchange.Transaction, error) {
	if err := scope.Require(identity.CapTxnView); err != nil {
		return nil, err
	}
	return s.txnRepo.FindByID(ctx, scope.TenantID, id)
}

// List returns transactions matching the filter
func (s *TransactionService) List(ctx context.Context, scope tenantctx.Scope, filter *exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	if err := scope.Require(identity.CapTxnView); err != nil {
		return nil, err
	}
	return s.txnRepo.FindByFilter(ctx, scope.TenantID, filter)
}

// run drives a freshly created transaction through the pipeline. A
// failed check leaves the row failed; a hold parks it for review.
func (s *TransactionService) run(ctx context.Context, scope tenantctx.Scope, saver *txnSaver, counterparty *uuid.UUID) (*exchange.Transaction, error) {
	txn := saver.txn

	if err := s.validate(ctx, scope, saver, counterparty); err != nil {
		return s.fail(ctx, scope, saver, err)
	}

	hold := txn.RiskScore >= s.config.HoldRiskScore ||
		txn.Amount.GreaterThanOrEqual(s.config.ManualApprovalThreshold)
	if hold {
		if err := txn.Hold(nil, "manual approval required"); err != nil {
			return nil, err
		}
		if err := saver.save(ctx); err != nil {
			return nil, err
		}
		s.auditTransition(scope, txn, "parked for review")
		return txn, nil
	}

	if err := txn.MarkApproved(nil); err != nil {
		return nil, err
	}
	if err := saver.save(ctx); err != nil {
		return nil, err
	}

	return s.runFromApproved(ctx, scope, saver)
}

// runFromApproved reserves, posts, and finalizes
func (s *TransactionService) runFromApproved(ctx context.Context, scope tenantctx.Scope, saver *txnSaver) (*exchange.Transaction, error) {
	txn := saver.txn

	if err := ctx.Err(); err != nil {
		_ = txn.Cancel(nil, "deadline expired before funds were reserved")
		_ = saver.save(context.WithoutCancel(ctx))
		return txn, err
	}

	if err := s.reserve(ctx, scope, saver); err != nil {
		return s.fail(ctx, scope, saver, err)
	}
	if err := txn.MarkProcessing(nil); err != nil {
		return nil, err
	}
	if err := saver.save(ctx); err != nil {
		return nil, err
	}

	entry, err := s.post(ctx, scope, txn)
	if err != nil {
		if shared.IsCode(err, "CONTENTION") {
			// outcome uncertain, leave the row for the recovery scanner
			txn.RecordRetry()
			_ = saver.save(ctx)
			return txn, err
		}
		s.releaseReservation(ctx, scope, txn)
		return s.fail(ctx, scope, saver, err)
	}

	if err := txn.MarkSettled(entry.ID); err != nil {
		return nil, err
	}
	if err := txn.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := saver.save(ctx); err != nil {
		return nil, err
	}
	s.auditTransition(scope, txn, "completed")

	s.logger.Info("Transaction completed",
		zap.String("reference", txn.Reference),
		zap.String("entry_number", entry.EntryNumber))

	return txn, nil
}

// validate runs the rule checks, prices the transaction, and resolves
// the accounts it will move funds between.
func (s *TransactionService) validate(ctx context.Context, scope tenantctx.Scope, saver *txnSaver, counterparty *uuid.UUID) error {
	txn := saver.txn

	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return err
	}
	if !tenant.CanTransact() {
		return shared.ErrTenantInactive
	}

	customer, err := s.userRepo.FindByID(ctx, scope.TenantID, txn.CustomerID)
	if err != nil {
		return shared.NewDomainError("INVALID_CUSTOMER", "Customer not found")
	}
	if !customer.IsKYCApproved() {
		return shared.NewDomainError("KYC_REQUIRED", "Customer has not passed KYC review")
	}

	if txn.Amount.GreaterThan(tenant.Limits.SingleTransactionLimit) {
		return shared.NewDomainError("LIMIT_EXCEEDED", "Amount exceeds the single transaction limit")
	}

	since := time.Now().Add(-s.config.DailyCapWindow)
	spent, err := s.txnRepo.SumSettledForCustomerSince(ctx, scope.TenantID, txn.CustomerID, txn.FromCurrency, since)
	if err != nil {
		return err
	}
	if spent.Add(txn.Amount).GreaterThan(tenant.Limits.DailyTransactionCap) {
		return shared.NewDomainError("LIMIT_EXCEEDED", "Amount exceeds the rolling daily cap")
	}

	rate := decimal.NewFromInt(1)
	if txn.IsCrossCurrency() {
		// quotes are published in source units per target unit, the
		// conversion rate applied to the amount is the reciprocal
		published, quoted, err := s.rates.Quote(ctx, scope, txn.FromCurrency, txn.ToCurrency, exchange.DirectionBuy)
		if err != nil {
			return err
		}
		if err := s.checkTolerance(published, quoted); err != nil {
			return err
		}
		rate = decimal.NewFromInt(1).DivRound(quoted, 12)
	}

	quote, err := s.policy.Price(txn.Amount, rate, txn.FromCurrency, txn.ToCurrency)
	if err != nil {
		return err
	}

	if txn.Amount.GreaterThanOrEqual(s.config.ManualApprovalThreshold) {
		txn.FlagCompliance("large_amount", 30)
	}

	from, to, err := s.resolveAccounts(ctx, scope, txn, counterparty)
	if err != nil {
		return err
	}
	txn.SetAccounts(accountIDPtr(from), accountIDPtr(to))

	if err := txn.MarkVerified(quote.Rate, quote.EquivalentAmount, quote.Commission, quote.Fees); err != nil {
		return err
	}
	return saver.save(ctx)
}

// checkTolerance rejects a quote outside the published spread widened
// by the tolerance.
func (s *TransactionService) checkTolerance(published *exchange.ExchangeRate, quoted decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	low := published.BuyRate.Mul(one.Sub(s.config.RateTolerance))
	high := published.SellRate.Mul(one.Add(s.config.RateTolerance))
	if quoted.LessThan(low) || quoted.GreaterThan(high) {
		return shared.NewDomainError("RATE_OUT_OF_RANGE", "Quoted rate lies outside the tolerated spread")
	}
	return nil
}

// reserve freezes the gross debit on the source account. Inbound types
// have no customer wallet to reserve against.
func (s *TransactionService) reserve(ctx context.Context, scope tenantctx.Scope, saver *txnSaver) error {
	txn := saver.txn

	if txn.Type == exchange.TxnTypeDeposit || txn.Type == exchange.TxnTypeRemittanceRecv {
		return nil
	}
	if txn.FromAccountID == nil {
		return shared.NewDomainError("INVALID_STATE", "Transaction has no source account")
	}

	_, err := s.balances.Reserve(ctx, scope, appledger.BalanceOpInput{
		AccountID: *txn.FromAccountID,
		Amount:    txn.GrossDebit(),
		Reference: txn.Reference,
	})
	return err
}

func accountIDPtr(a *ledger.Account) *uuid.UUID {
	if a == nil {
		return nil
	}
	id := a.ID
	return &id
}

// post builds the balanced entry for the transaction type
func (s *TransactionService) post(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction) (*ledger.JournalEntry, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return nil, err
	}

	lines, settle, err := s.buildLines(ctx, scope, txn, tenant.BaseCurrency)
	if err != nil {
		return nil, err
	}

	// Settlement is booked by the platform, not the initiating user;
	// customers never hold journal.post themselves.
	return s.journal.Post(ctx, tenantctx.ServiceScope(scope.TenantID), appledger.PostEntryInput{
		Description:        fmt.Sprintf("%s %s", txn.Type, txn.Reference),
		Type:               entryTypeFor(txn.Type),
		SourceTxnID:        &txn.ID,
		Lines:              lines,
		SettleReservations: settle,
	})
}

func entryTypeFor(tt exchange.TransactionType) ledger.JournalEntryType {
	switch tt {
	case exchange.TxnTypeExchange:
		return ledger.EntryTypeExchange
	case exchange.TxnTypeTransfer:
		return ledger.EntryTypeTransfer
	default:
		return ledger.EntryTypeAutomatic
	}
}

// fail drives the transaction to failed with the cause's error code
func (s *TransactionService) fail(ctx context.Context, scope tenantctx.Scope, saver *txnSaver, cause error) (*exchange.Transaction, error) {
	txn := saver.txn

	code := "VALIDATION_FAILED"
	var domainErr *shared.DomainError
	if errors.As(cause, &domainErr) {
		code = domainErr.Code
	}

	if err := txn.MarkFailed(code, cause.Error()); err != nil {
		return nil, cause
	}
	if err := saver.save(ctx); err != nil {
		return nil, err
	}
	s.auditTransition(scope, txn, cause.Error())

	return txn, cause
}

func (s *TransactionService) releaseReservation(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction) {
	if txn.FromAccountID == nil {
		return
	}
	if txn.Type == exchange.TxnTypeDeposit || txn.Type == exchange.TxnTypeRemittanceRecv {
		return
	}
	_, err := s.balances.Release(ctx, scope, appledger.BalanceOpInput{
		AccountID: *txn.FromAccountID,
		Amount:    txn.GrossDebit(),
		Reference: txn.Reference,
	})
	if err != nil {
		s.logger.Error("Failed to release reservation",
			zap.String("reference", txn.Reference),
			zap.Error(err))
	}
}

// publishEvents drains pending aggregate events to the bus. Events are
// cleared even without a publisher so a later save cannot replay them.
func (s *TransactionService) publishEvents(ctx context.Context, txn *exchange.Transaction) {
	events := txn.GetDomainEvents()
	txn.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events",
			zap.String("reference", txn.Reference),
			zap.Error(err))
	}
}

func (s *TransactionService) auditTransition(scope tenantctx.Scope, txn *exchange.Transaction, reason string) {
	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionTxnTransition).
		WithEntity("Transaction", txn.ID).
		WithChange(nil, map[string]any{
			"status":    string(txn.Status),
			"reference": txn.Reference,
			"reason":    reason,
		}))
}
