package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/exchange"
)

// ReconciliationConfig tunes the remittance pairing sweep
type ReconciliationConfig struct {
	// Window is how long a remittance leg may wait for its
	// counterpart before it is flagged.
	Window time.Duration
	// BatchSize caps how many rows one sweep processes.
	BatchSize int
}

// DefaultReconciliationConfig returns default configuration
func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		Window:    24 * time.Hour,
		BatchSize: 100,
	}
}

// ReconciliationService pairs remittance legs by correlation id. A
// send whose receive landed (or the other way round) is stamped
// reconciled; a leg past the window with no counterpart is flagged
// for compliance review.
type ReconciliationService struct {
	txnRepo  exchange.TransactionRepository
	config   ReconciliationConfig
	recorder *appaudit.Recorder
	logger   *zap.Logger
}

// NewReconciliationService creates a new reconciliation sweep
func NewReconciliationService(
	txnRepo exchange.TransactionRepository,
	config ReconciliationConfig,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		txnRepo:  txnRepo,
		config:   config,
		recorder: recorder,
		logger:   logger,
	}
}

// Sweep processes one batch of unreconciled remittances and returns
// how many it stamped.
func (s *ReconciliationService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.Window)
	legs, err := s.txnRepo.FindUnreconciledRemittances(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	stamped := 0
	for _, leg := range legs {
		if err := ctx.Err(); err != nil {
			return stamped, err
		}
		matched, err := s.reconcile(ctx, leg)
		if err != nil {
			s.logger.Error("Failed to reconcile remittance",
				zap.String("reference", leg.Reference),
				zap.Error(err))
			continue
		}
		if matched {
			stamped++
		}
	}
	return stamped, nil
}

func (s *ReconciliationService) reconcile(ctx context.Context, leg *exchange.Transaction) (bool, error) {
	if leg.CorrelationID == nil {
		return false, nil
	}

	siblings, err := s.txnRepo.FindByCorrelation(ctx, *leg.CorrelationID)
	if err != nil {
		return false, err
	}

	counterpart := findCounterpart(leg, siblings)
	if counterpart == nil || counterpart.Status != exchange.TxnStatusCompleted {
		s.flagOrphan(leg)
		return false, nil
	}

	saver := &txnSaver{repo: s.txnRepo, txn: leg, persisted: leg.Version}
	if err := leg.MarkReconciled(); err != nil {
		return false, err
	}
	if err := saver.save(ctx); err != nil {
		return false, err
	}

	s.logger.Info("Remittance reconciled",
		zap.String("reference", leg.Reference),
		zap.String("counterpart", counterpart.Reference))
	return true, nil
}

func findCounterpart(leg *exchange.Transaction, siblings []*exchange.Transaction) *exchange.Transaction {
	want := exchange.TxnTypeRemittanceRecv
	if leg.Type == exchange.TxnTypeRemittanceRecv {
		want = exchange.TxnTypeRemittanceSend
	}
	for _, sibling := range siblings {
		if sibling.ID != leg.ID && sibling.Type == want {
			return sibling
		}
	}
	return nil
}

// flagOrphan reports a leg past the window with no completed
// counterpart. Stamping is left undone so the row keeps surfacing
// until someone resolves it.
func (s *ReconciliationService) flagOrphan(leg *exchange.Transaction) {
	s.recorder.Record(audit.Record(leg.TenantID, nil, audit.ActionIntegrityViolation).
		WithEntity("Transaction", leg.ID).
		WithChange(nil, map[string]any{
			"reference": leg.Reference,
			"type":      string(leg.Type),
			"reason":    "remittance counterpart missing past the window",
		}).
		WithRisk(audit.RiskHigh))
}
