package ledger

import (
	"context"

	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/ledger"
	"github.com/kambio/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AccountService manages account lifecycle
type AccountService struct {
	accountRepo ledger.AccountRepository
	tenantRepo  identity.TenantRepository
	recorder    *appaudit.Recorder
	logger      *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(
	accountRepo ledger.AccountRepository,
	tenantRepo identity.TenantRepository,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		tenantRepo:  tenantRepo,
		recorder:    recorder,
		logger:      logger,
	}
}

// Open creates an account, or returns the existing one when the owner
// already holds an account of the same currency and type. Repeated
// opens are safe.
func (s *AccountService) Open(ctx context.Context, scope tenantctx.Scope, input OpenAccountInput) (*ledger.Account, error) {
	if err := scope.Require(identity.CapAccountOpen); err != nil {
		return nil, err
	}

	existing, err := s.accountRepo.FindByNaturalKey(ctx, scope.TenantID, input.OwnerUserID, input.Currency, input.Type)
	if err == nil && existing != nil {
		return existing, nil
	}

	account, err := ledger.NewAccount(scope.TenantID, input.OwnerUserID, input.Currency, input.Type)
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		// a racing open may have created the row; return it
		if shared.IsCode(err, "ALREADY_EXISTS") {
			return s.accountRepo.FindByNaturalKey(ctx, scope.TenantID, input.OwnerUserID, input.Currency, input.Type)
		}
		s.logger.Error("Failed to create account", zap.Error(err))
		return nil, err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionAccountOpened).
		WithEntity("Account", account.ID).
		WithChange(nil, map[string]any{"currency": account.Currency, "type": string(account.Type)}))

	s.logger.Info("Account opened",
		zap.String("account_id", account.ID.String()),
		zap.String("currency", account.Currency),
		zap.String("type", string(account.Type)))

	return account, nil
}

// Get returns an account within the caller's tenant
func (s *AccountService) Get(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID) (*ledger.Account, error) {
	if err := scope.Require(identity.CapAccountView); err != nil {
		return nil, err
	}
	return s.accountRepo.FindByID(ctx, scope.TenantID, accountID)
}

// ListByOwner returns the owner's accounts
func (s *AccountService) ListByOwner(ctx context.Context, scope tenantctx.Scope, ownerUserID uuid.UUID) ([]*ledger.Account, error) {
	if err := scope.Require(identity.CapAccountView); err != nil {
		return nil, err
	}
	return s.accountRepo.FindByOwner(ctx, scope.TenantID, ownerUserID)
}

// Freeze stops all movement on an account
func (s *AccountService) Freeze(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, reason string) error {
	return s.changeStatus(ctx, scope, accountID, reason, audit.ActionAccountFrozen, (*ledger.Account).Freeze)
}

// Unfreeze reactivates a frozen account
func (s *AccountService) Unfreeze(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, reason string) error {
	return s.changeStatus(ctx, scope, accountID, reason, audit.ActionAccountUnfrozen, (*ledger.Account).Unfreeze)
}

// Close closes an account; balances must be zero
func (s *AccountService) Close(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, reason string) error {
	if err := scope.Require(identity.CapAccountClose); err != nil {
		return err
	}
	return s.mutate(ctx, scope, accountID, reason, audit.ActionAccountClosed, (*ledger.Account).Close)
}

// SetLimits replaces the account's balance bounds and posting flags
func (s *AccountService) SetLimits(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, input SetAccountLimitsInput) (*ledger.Account, error) {
	if err := scope.Require(identity.CapAccountFreeze); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.FindByID(ctx, scope.TenantID, accountID)
	if err != nil {
		return nil, err
	}

	before := map[string]any{
		"min_balance":  account.MinBalance,
		"max_balance":  account.MaxBalance,
		"allow_debit":  account.AllowDebit,
		"allow_credit": account.AllowCredit,
	}

	if err := account.SetLimits(input.MinBalance, input.MaxBalance, input.AllowDebit, input.AllowCredit); err != nil {
		return nil, err
	}

	if err := s.accountRepo.SaveWithLock(ctx, account); err != nil {
		return nil, err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionAccountLimitsSet).
		WithEntity("Account", account.ID).
		WithChange(before, map[string]any{
			"min_balance":  account.MinBalance,
			"max_balance":  account.MaxBalance,
			"allow_debit":  account.AllowDebit,
			"allow_credit": account.AllowCredit,
		}))

	return account, nil
}

func (s *AccountService) changeStatus(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, reason, action string, op func(*ledger.Account) error) error {
	if err := scope.Require(identity.CapAccountFreeze); err != nil {
		return err
	}
	return s.mutate(ctx, scope, accountID, reason, action, op)
}

func (s *AccountService) mutate(ctx context.Context, scope tenantctx.Scope, accountID uuid.UUID, reason, action string, op func(*ledger.Account) error) error {
	account, err := s.accountRepo.FindByID(ctx, scope.TenantID, accountID)
	if err != nil {
		return err
	}

	oldStatus := account.Status
	if err := op(account); err != nil {
		return err
	}
	if err := s.accountRepo.SaveWithLock(ctx, account); err != nil {
		return err
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, action).
		WithEntity("Account", account.ID).
		WithChange(map[string]any{"status": string(oldStatus)}, map[string]any{"status": string(account.Status), "reason": reason}))

	return nil
}
