package ledger

import (
	"context"
	"errors"
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

const (
	casMaxAttempts  = 3
	casInitialDelay = 10 * time.Millisecond
)

// BalanceService applies balance mutations under optimistic locking.
// Every mutation is read-modify-write on (id, version); a version miss
// reloads and retries with exponential backoff, then surfaces
// CONTENTION.
type BalanceService struct {
	accountRepo ledger.AccountRepository
	tenantRepo  identity.TenantRepository
	recorder    *appaudit.Recorder
	logger      *zap.Logger
}

// NewBalanceService creates a new balance service
func NewBalanceService(
	accountRepo ledger.AccountRepository,
	tenantRepo identity.TenantRepository,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *BalanceService {
	return &BalanceService{
		accountRepo: accountRepo,
		tenantRepo:  tenantRepo,
		recorder:    recorder,
		logger:      logger,
	}
}

// Reserve freezes funds on an account
func (s *BalanceService) Reserve(ctx context.Context, scope tenantctx.Scope, input BalanceOpInput) (*ledger.Account, error) {
	return s.withRetry(ctx, scope, input.AccountID, func(a *ledger.Account) error {
		return a.Reserve(input.Amount)
	})
}

// Release returns frozen funds to available. Releasing more than is
// frozen releases what remains, so retries are safe.
func (s *BalanceService) Release(ctx context.Context, scope tenantctx.Scope, input BalanceOpInput) (*ledger.Account, error) {
	return s.withRetry(ctx, scope, input.AccountID, func(a *ledger.Account) error {
		return a.Release(input.Amount)
	})
}

// SettleDebit consumes a reservation for good
func (s *BalanceService) SettleDebit(ctx context.Context, scope tenantctx.Scope, input BalanceOpInput) (*ledger.Account, error) {
	return s.withRetry(ctx, scope, input.AccountID, func(a *ledger.Account) error {
		return a.SettleDebit(input.Amount)
	})
}

// Credit adds funds to an account
func (s *BalanceService) Credit(ctx context.Context, scope tenantctx.Scope, input BalanceOpInput) (*ledger.Account, error) {
	return s.withRetry(ctx, scope, input.AccountID, func(a *ledger.Account) error {
		return a.Credit(input.Amount)
	})
}

// Adjust applies a signed manual correction. Capability-gated and
// audited at high risk.
func (s *BalanceService) Adjust(ctx context.Context, scope tenantctx.Scope, input AdjustInput) (*ledger.Account, error) {
	if err := scope.Require(identity.CapBalanceAdjust); err != nil {
		return nil, err
	}

	var oldBalance decimal.Decimal
	account, err := s.withRetry(ctx, scope, input.AccountID, func(a *ledger.Account) error {
		oldBalance = a.Balance
		return a.Adjust(input.Delta, input.Reason)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionBalanceAdjusted).
		WithEntity("Account", account.ID).
		WithChange(
			map[string]any{"balance": oldBalance.String()},
			map[string]any{"balance": account.Balance.String(), "delta": input.Delta.String(), "reason": input.Reason},
		))

	return account, nil
}

// withRetry loads the account, guards the tenant, applies op, and
// saves under CAS. Concurrency conflicts reload and retry.
func (s *BalanceService) withRetry(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, op func(*ledger.Account) error) (*ledger.Account, error) {
	if err := s.guardTenant(ctx, scope); err != nil {
		return nil, err
	}

	delay := casInitialDelay
	for attempt := 1; ; attempt++ {
		account, err := s.accountRepo.FindByID(ctx, scope.TenantID, accountID)
		if err != nil {
			return nil, err
		}

		preVersion := account.Version
		if err := op(account); err != nil {
			return nil, err
		}
		if account.Version == preVersion {
			// nothing changed, e.g. releasing an already-released hold
			return account, nil
		}

		err = s.accountRepo.SaveWithLock(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) && !shared.IsCode(err, "CONCURRENT_MODIFICATION") {
			return nil, err
		}
		if attempt >= casMaxAttempts {
			s.logger.Warn("Balance write lost the version race",
				zap.String("account_id", account.ID.String()),
				zap.Int("attempts", attempt))
			return nil, shared.ErrContention
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
}

func (s *BalanceService) guardTenant(ctx context.Context, scope tenantctx.Scope) error {
	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return err
	}
	if tenant.LedgerQuarantined {
		return shared.NewDomainError("LEDGER_QUARANTINED", "Ledger is quarantined pending operator action")
	}
	return nil
}
