package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
)

// JournalService posts and reverses balanced journal entries. Posting
// runs as one atomic unit: the entry number is assigned, the entry is
// stored, and every leg is applied to its account, or nothing happens.
type JournalService struct {
	txScope    TransactionScope
	tenantRepo identity.TenantRepository
	recorder   *appaudit.Recorder
	logger     *zap.Logger
}

// NewJournalService creates a new journal service
func NewJournalService(
	txScope TransactionScope,
	tenantRepo identity.TenantRepository,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *JournalService {
	return &JournalService{
		txScope:    txScope,
		tenantRepo: tenantRepo,
		recorder:   recorder,
		logger:     logger,
	}
}

// Post validates, numbers, stores, and applies a balanced entry.
func (s *JournalService) Post(ctx context.Context, scope tenantctx.Scope, input PostEntryInput) (*ledger.JournalEntry, error) {
	if err := scope.Require(identity.CapJournalPost); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.LedgerQuarantined {
		return nil, shared.NewDomainError("LEDGER_QUARANTINED", "Ledger is quarantined pending operator action")
	}

	lines := make([]ledger.JournalLine, 0, len(input.Lines))
	for _, li := range input.Lines {
		line, err := ledger.NewJournalLine(li.AccountID, li.Side, li.Amount, li.Currency, li.ExchangeRateToBase, li.Description)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	entry, err := ledger.NewDraftEntry(scope.TenantID, input.Type, input.Description, input.SourceTxnID, tenant.BaseCurrency, scope.UserID, lines)
	if err != nil {
		return nil, err
	}
	if !input.EntryDate.IsZero() {
		entry.EntryDate = input.EntryDate
		entry.Period = ledger.PeriodOf(input.EntryDate)
	}

	err = s.txScope.Execute(ctx, func(repos LedgerRepositories) error {
		seq, err := repos.JournalRepo().NextEntryNumber(ctx, scope.TenantID, entry.Period.Year)
		if err != nil {
			return err
		}
		if err := entry.MarkPosted(ledger.FormatEntryNumber(entry.Period.Year, seq), scope.UserID); err != nil {
			return err
		}
		if err := repos.JournalRepo().Create(ctx, entry); err != nil {
			return err
		}
		return s.applyLines(ctx, repos.AccountRepo(), scope.TenantID, entry.Lines, input.SettleReservations)
	})
	if err != nil {
		if shared.IsCode(err, "INTEGRITY_VIOLATION") {
			s.quarantine(ctx, scope, tenant, err)
		}
		return nil, err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionJournalPosted).
		WithEntity("JournalEntry", entry.ID).
		WithChange(nil, map[string]any{
			"entry_number": entry.EntryNumber,
			"total_debit":  entry.TotalDebit.String(),
			"legs":         len(entry.Lines),
		}))

	s.logger.Info("Journal entry posted",
		zap.String("entry_number", entry.EntryNumber),
		zap.String("entry_id", entry.ID.String()),
		zap.Int("legs", len(entry.Lines)))

	return entry, nil
}

// Reverse posts a mirror entry for a posted entry and marks the
// original reversed. The reversal gets its own entry number.
func (s *JournalService) Reverse(ctx context.Context, scope tenantctx.Scope, input ReverseEntryInput) (*ledger.JournalEntry, error) {
	if err := scope.Require(identity.CapJournalReverse); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.LedgerQuarantined {
		return nil, shared.NewDomainError("LEDGER_QUARANTINED", "Ledger is quarantined pending operator action")
	}

	var reversal *ledger.JournalEntry
	err = s.txScope.Execute(ctx, func(repos LedgerRepositories) error {
		original, err := repos.JournalRepo().FindByID(ctx, scope.TenantID, input.EntryID)
		if err != nil {
			return err
		}

		reversal, err = original.BuildReversal(scope.UserID, input.Reason, tenant.BaseCurrency)
		if err != nil {
			return err
		}

		seq, err := repos.JournalRepo().NextEntryNumber(ctx, scope.TenantID, reversal.Period.Year)
		if err != nil {
			return err
		}
		if err := reversal.MarkPosted(ledger.FormatEntryNumber(reversal.Period.Year, seq), scope.UserID); err != nil {
			return err
		}
		if err := repos.JournalRepo().Create(ctx, reversal); err != nil {
			return err
		}
		if err := original.MarkReversed(scope.UserID); err != nil {
			return err
		}
		if err := repos.JournalRepo().Update(ctx, original); err != nil {
			return err
		}
		return s.applyLines(ctx, repos.AccountRepo(), scope.TenantID, reversal.Lines, nil)
	})
	if err != nil {
		if shared.IsCode(err, "INTEGRITY_VIOLATION") {
			s.quarantine(ctx, scope, tenant, err)
		}
		return nil, err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionJournalReversed).
		WithEntity("JournalEntry", input.EntryID).
		WithChange(nil, map[string]any{
			"reversal_number": reversal.EntryNumber,
			"reason":          input.Reason,
		}))

	return reversal, nil
}

// TrialBalance folds all posted lines through asOf into per-account
// net positions. Draft entries are invisible.
func (s *JournalService) TrialBalance(ctx context.Context, scope tenantctx.Scope, input TrialBalanceInput) (*ledger.TrialBalanceResult, error) {
	if err := scope.Require(identity.CapJournalView); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return nil, err
	}

	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var result *ledger.TrialBalanceResult
	err = s.txScope.Execute(ctx, func(repos LedgerRepositories) error {
		lines, err := repos.JournalRepo().PostedLinesThrough(ctx, scope.TenantID, asOf)
		if err != nil {
			return err
		}
		accounts, err := repos.AccountRepo().FindByTenant(ctx, scope.TenantID, "")
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*ledger.Account, len(accounts))
		for _, a := range accounts {
			byID[a.ID] = a
		}
		result = ledger.ComputeTrialBalance(scope.TenantID, asOf, lines, byID, tenant.BaseCurrency)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Balanced {
		s.logger.Error("Trial balance does not balance",
			zap.String("tenant_id", scope.TenantID.String()),
			zap.String("imbalance", result.Imbalance().String()))
	}

	return result, nil
}

// Get returns one entry within the caller's tenant
func (s *JournalService) Get(ctx context.Context, scope tenantctx.Scope, entryID uuid.UUID) (*ledger.JournalEntry, error) {
	if err := scope.Require(identity.CapJournalView); err != nil {
		return nil, err
	}

	var entry *ledger.JournalEntry
	err := s.txScope.Execute(ctx, func(repos LedgerRepositories) error {
		var err error
		entry, err = repos.JournalRepo().FindByID(ctx, scope.TenantID, entryID)
		return err
	})
	return entry, err
}

// ListByPeriod returns the entries of one accounting period.
func (s *JournalService) ListByPeriod(ctx context.Context, scope tenantctx.Scope, year, month int) ([]*ledger.JournalEntry, error) {
	if err := scope.Require(identity.CapJournalView); err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Month must be between 1 and 12")
	}

	var entries []*ledger.JournalEntry
	err := s.txScope.Execute(ctx, func(repos LedgerRepositories) error {
		var err error
		entries, err = repos.JournalRepo().FindByPeriod(ctx, scope.TenantID, year, month)
		return err
	})
	return entries, err
}

// ListBySourceTransaction returns every entry a transaction produced,
// the posting and any reversal.
func (s *JournalService) ListBySourceTransaction(ctx context.Context, scope tenantctx.Scope, txnID uuid.UUID) ([]*ledger.JournalEntry, error) {
	if err := scope.Require(identity.CapJournalView); err != nil {
		return nil, err
	}

	var entries []*ledger.JournalEntry
	err := s.txScope.Execute(ctx, func(repos LedgerRepositories) error {
		var err error
		entries, err = repos.JournalRepo().FindBySourceTxn(ctx, scope.TenantID, txnID)
		return err
	})
	return entries, err
}

// applyLines moves each leg's amount onto its account. The direction
// depends on the account's normal side: a leg on the account's normal
// side increases the balance, the opposite side decreases it. A
// decreasing leg listed in settle consumes frozen funds.
func (s *JournalService) applyLines(ctx context.Context, accounts ledger.AccountRepository, tenantID uuid.UUID, lines []ledger.JournalLine, settle map[uuid.UUID]decimal.Decimal) error {
	for _, line := range lines {
		account, err := accounts.FindByID(ctx, tenantID, line.AccountID)
		if err != nil {
			return err
		}

		increases := (line.Side == ledger.SideDebit) == (account.NormalSide() == ledger.NormalSideDebit)
		if increases {
			err = account.Credit(line.Amount)
		} else if reserved, ok := settle[line.AccountID]; ok && reserved.GreaterThanOrEqual(line.Amount) {
			err = account.SettleDebit(line.Amount)
		} else {
			err = account.Debit(line.Amount)
		}
		if err != nil {
			return err
		}

		if err := account.CheckIntegrity(); err != nil {
			return err
		}
		if err := accounts.SaveWithLock(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

func (s *JournalService) quarantine(ctx context.Context, scope tenantctx.Scope, tenant *identity.Tenant, cause error) {
	if err := tenant.QuarantineLedger(cause.Error()); err != nil {
		s.logger.Warn("Ledger already quarantined", zap.Error(err))
	} else if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("Failed to quarantine ledger", zap.Error(err))
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionLedgerQuarantined).
		WithChange(nil, map[string]any{"cause": cause.Error()}))

	s.logger.Error("Ledger quarantined after integrity violation",
		zap.String("tenant_id", scope.TenantID.String()),
		zap.Error(cause))
}
