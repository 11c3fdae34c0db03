package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/ledger"
)

// RecoveryConfig tunes the stuck-transaction sweep
type RecoveryConfig struct {
	// StuckAfter is how long a non-terminal transaction may go
	// untouched before the sweep picks it up.
	StuckAfter time.Duration
	// BatchSize caps how many rows one sweep processes.
	BatchSize int
	// OrphanGrace is how long frozen funds may sit on an account with
	// no live transaction claiming them before the orphan sweep
	// releases them.
	OrphanGrace time.Duration
}

// DefaultRecoveryConfig returns default configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		StuckAfter:  10 * time.Minute,
		BatchSize:   50,
		OrphanGrace: time.Hour,
	}
}

// RecoveryService resolves transactions a crashed or interrupted
// pipeline left mid-flight. A processing row whose journal entry made
// it to the ledger is completed; one without an entry is cancelled and
// its reservation released.
type RecoveryService struct {
	txnRepo     exchange.TransactionRepository
	journalRepo ledger.JournalEntryRepository
	accountRepo ledger.AccountRepository
	balances    *appledger.BalanceService
	config      RecoveryConfig
	recorder    *appaudit.Recorder
	logger      *zap.Logger
}

// NewRecoveryService creates a new recovery sweep
func NewRecoveryService(
	txnRepo exchange.TransactionRepository,
	journalRepo ledger.JournalEntryRepository,
	accountRepo ledger.AccountRepository,
	balances *appledger.BalanceService,
	config RecoveryConfig,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *RecoveryService {
	return &RecoveryService{
		txnRepo:     txnRepo,
		journalRepo: journalRepo,
		accountRepo: accountRepo,
		balances:    balances,
		config:      config,
		recorder:    recorder,
		logger:      logger,
	}
}

// Sweep processes one batch of stuck transactions and returns how many
// it resolved.
func (s *RecoveryService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.StuckAfter)
	stuck, err := s.txnRepo.FindStuck(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, txn := range stuck {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if err := s.recover(ctx, txn); err != nil {
			s.logger.Error("Failed to recover transaction",
				zap.String("reference", txn.Reference),
				zap.String("status", string(txn.Status)),
				zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (s *RecoveryService) recover(ctx context.Context, txn *exchange.Transaction) error {
	scope := tenantctx.ServiceScope(txn.TenantID)
	saver := &txnSaver{repo: s.txnRepo, txn: txn, persisted: txn.Version}

	switch txn.Status {
	case exchange.TxnStatusProcessing:
		entries, err := s.journalRepo.FindBySourceTxn(ctx, txn.TenantID, txn.ID)
		if err != nil {
			return err
		}
		if len(entries) > 0 && entries[0].Status == ledger.EntryStatusPosted {
			// the entry landed before the crash, finish the bookkeeping
			if err := txn.MarkSettled(entries[0].ID); err != nil {
				return err
			}
			if err := txn.MarkCompleted(); err != nil {
				return err
			}
			if err := saver.save(ctx); err != nil {
				return err
			}
			s.audit(scope, txn, "recovered as completed")
			return nil
		}
		s.release(ctx, scope, txn)
		if err := txn.Cancel(nil, "recovered after interruption"); err != nil {
			return err
		}
		if err := saver.save(ctx); err != nil {
			return err
		}
		s.audit(scope, txn, "recovered as cancelled")
		return nil

	case exchange.TxnStatusSettled:
		// only the final stamp is missing
		if err := txn.MarkCompleted(); err != nil {
			return err
		}
		if err := saver.save(ctx); err != nil {
			return err
		}
		s.audit(scope, txn, "recovered as completed")
		return nil

	case exchange.TxnStatusApproved:
		// the pipeline reserves right after approval, so a crash here
		// may have left frozen funds behind
		s.release(ctx, scope, txn)
		if err := txn.Cancel(nil, "expired before processing"); err != nil {
			return err
		}
		if err := saver.save(ctx); err != nil {
			return err
		}
		s.audit(scope, txn, "recovered as cancelled")
		return nil

	case exchange.TxnStatusPending, exchange.TxnStatusVerified:
		// nothing has moved yet, cancelling is safe
		if err := txn.Cancel(nil, "expired before processing"); err != nil {
			return err
		}
		if err := saver.save(ctx); err != nil {
			return err
		}
		s.audit(scope, txn, "recovered as cancelled")
		return nil

	default:
		// on-hold rows wait for a human, terminal rows need nothing
		return nil
	}
}

// SweepOrphanReservations releases frozen funds that no live
// transaction claims anymore. A crash between reserving and persisting
// the transaction row can strand a hold; the grace window keeps the
// sweep from racing a pipeline that is still mid-flight. Returns how
// many accounts were cleaned.
func (s *RecoveryService) SweepOrphanReservations(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.OrphanGrace)
	accounts, err := s.accountRepo.FindWithReservations(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		active, err := s.txnRepo.CountActiveByFromAccount(ctx, account.TenantID, account.ID)
		if err != nil {
			s.logger.Error("Failed to check reservation owners",
				zap.String("account_number", account.AccountNumber),
				zap.Error(err))
			continue
		}
		if active > 0 {
			continue
		}

		scope := tenantctx.ServiceScope(account.TenantID)
		if _, err := s.balances.Release(ctx, scope, appledger.BalanceOpInput{
			AccountID: account.ID,
			Amount:    account.Frozen,
			Reference: "orphan reservation sweep",
		}); err != nil {
			s.logger.Error("Failed to release orphan reservation",
				zap.String("account_number", account.AccountNumber),
				zap.Error(err))
			continue
		}
		s.logger.Info("Released orphan reservation",
			zap.String("account_number", account.AccountNumber),
			zap.String("amount", account.Frozen.String()))
		released++
	}
	return released, nil
}

func (s *RecoveryService) release(ctx context.Context, scope tenantctx.Scope, txn *exchange.Transaction) {
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
		s.logger.Error("Failed to release reservation during recovery",
			zap.String("reference", txn.Reference),
			zap.Error(err))
	}
}

func (s *RecoveryService) audit(scope tenantctx.Scope, txn *exchange.Transaction, reason string) {
	s.recorder.Record(audit.Record(scope.TenantID, nil, audit.ActionTxnTransition).
		WithEntity("Transaction", txn.ID).
		WithChange(nil, map[string]any{
			"status":    string(txn.Status),
			"reference": txn.Reference,
			"reason":    reason,
		}))
}
