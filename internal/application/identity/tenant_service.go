package identity

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
)

// TenantService manages the exchange businesses hosted on the platform
type TenantService struct {
	tenantRepo identity.TenantRepository
	recorder   *appaudit.Recorder
	logger     *zap.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenantRepo identity.TenantRepository,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		tenantRepo: tenantRepo,
		recorder:   recorder,
		logger:     logger,
	}
}

// CreateTenantInput contains input for creating a tenant
type CreateTenantInput struct {
	Code         string
	Name         string
	BaseCurrency string
	Plan         string
	ContactName  string
	ContactPhone string
	ContactEmail string
	Notes        string
	TrialDays    int // If > 0, creates a trial tenant
}

// UpdateTenantInput contains input for updating a tenant
type UpdateTenantInput struct {
	Name         *string
	ContactName  *string
	ContactPhone *string
	ContactEmail *string
	Notes        *string
}

// Create provisions a new tenant. Only platform operators hold the
// capability.
func (s *TenantService) Create(ctx context.Context, scope tenantctx.Scope, input CreateTenantInput) (*identity.Tenant, error) {
	if err := scope.Require(identity.CapTenantCreate); err != nil {
		return nil, err
	}

	exists, err := s.tenantRepo.ExistsByCode(ctx, input.Code)
	if err != nil {
		s.logger.Error("tenant code lookup failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check code availability")
	}
	if exists {
		return nil, shared.NewDomainError("CODE_EXISTS", "Tenant code already exists")
	}

	var tenant *identity.Tenant
	if input.TrialDays > 0 {
		tenant, err = identity.NewTrialTenant(input.Code, input.Name, input.BaseCurrency, input.TrialDays)
	} else {
		tenant, err = identity.NewTenant(input.Code, input.Name, input.BaseCurrency)
	}
	if err != nil {
		return nil, err
	}

	if input.ContactName != "" || input.ContactPhone != "" || input.ContactEmail != "" {
		if err := tenant.SetContact(input.ContactName, input.ContactPhone, input.ContactEmail); err != nil {
			return nil, err
		}
	}
	if input.Plan != "" {
		if err := tenant.SetPlan(identity.TenantPlan(input.Plan)); err != nil {
			return nil, err
		}
	}
	if input.Notes != "" {
		tenant.SetNotes(input.Notes)
	}

	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("tenant create failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create tenant")
	}

	s.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("code", tenant.Code))

	return tenant, nil
}

// CreateBranch links a new tenant under the caller's tenant. Branches
// inherit the parent's base currency.
func (s *TenantService) CreateBranch(ctx context.Context, scope tenantctx.Scope, parentID uuid.UUID, code, name string) (*identity.Tenant, error) {
	if err := scope.Require(identity.CapTenantManage); err != nil {
		return nil, err
	}
	if err := scope.EnsureTenant(parentID); err != nil {
		return nil, err
	}

	parent, err := s.tenantRepo.FindByID(ctx, parentID)
	if err != nil {
		return nil, shared.NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	}

	branches, err := s.tenantRepo.FindBranches(ctx, parentID)
	if err != nil {
		s.logger.Error("branch lookup failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list branches")
	}
	if !parent.CanAddBranch(len(branches)) {
		return nil, shared.NewDomainError("BRANCH_LIMIT_REACHED", "Plan does not allow more branches")
	}

	exists, err := s.tenantRepo.ExistsByCode(ctx, code)
	if err != nil {
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check code availability")
	}
	if exists {
		return nil, shared.NewDomainError("CODE_EXISTS", "Tenant code already exists")
	}

	branch, err := identity.NewBranchTenant(code, name, parent)
	if err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, branch); err != nil {
		s.logger.Error("branch create failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create branch")
	}

	return branch, nil
}

// Get retrieves a tenant. Reading a foreign tenant requires the
// cross-tenant capability and leaves a high-risk audit trail.
func (s *TenantService) Get(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error) {
	if id != scope.TenantID {
		crossScope, err := scope.WithAllTenants()
		if err != nil {
			return nil, err
		}
		scope = crossScope
		s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionCrossTenantView).
			WithEntity("tenant", id))
	}

	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	}
	return tenant, nil
}

// List returns all tenants; a platform-operator view
func (s *TenantService) List(ctx context.Context, scope tenantctx.Scope, filter shared.Filter) ([]identity.Tenant, int64, error) {
	if _, err := scope.WithAllTenants(); err != nil {
		return nil, 0, err
	}
	tenants, err := s.tenantRepo.FindAll(ctx, filter)
	if err != nil {
		s.logger.Error("tenant list failed", zap.Error(err))
		return nil, 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to list tenants")
	}
	total, err := s.tenantRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to count tenants")
	}
	return tenants, total, nil
}

// Update updates a tenant's basic information
func (s *TenantService) Update(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, input UpdateTenantInput) (*identity.Tenant, error) {
	tenant, err := s.manageable(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := tenant.Update(*input.Name); err != nil {
			return nil, err
		}
	}
	if input.ContactName != nil || input.ContactPhone != nil || input.ContactEmail != nil {
		contactName := tenant.ContactName
		contactPhone := tenant.ContactPhone
		contactEmail := tenant.ContactEmail
		if input.ContactName != nil {
			contactName = *input.ContactName
		}
		if input.ContactPhone != nil {
			contactPhone = *input.ContactPhone
		}
		if input.ContactEmail != nil {
			contactEmail = *input.ContactEmail
		}
		if err := tenant.SetContact(contactName, contactPhone, contactEmail); err != nil {
			return nil, err
		}
	}
	if input.Notes != nil {
		tenant.SetNotes(*input.Notes)
	}

	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("tenant update failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update tenant")
	}
	return tenant, nil
}

// SetPlan changes the subscription plan, which also resets the
// operational limits to the plan's defaults.
func (s *TenantService) SetPlan(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, plan string) (*identity.Tenant, error) {
	tenant, err := s.manageable(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.SetPlan(identity.TenantPlan(plan)); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("tenant plan update failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update plan")
	}
	return tenant, nil
}

// UpdateLimits overrides the tenant's operational limits
func (s *TenantService) UpdateLimits(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, limits identity.TenantLimits) (*identity.Tenant, error) {
	tenant, err := s.manageable(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.UpdateLimits(limits); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("tenant limits update failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update limits")
	}
	return tenant, nil
}

// Activate activates a tenant
func (s *TenantService) Activate(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error) {
	return s.transition(ctx, scope, id, func(t *identity.Tenant) error { return t.Activate() })
}

// Deactivate deactivates a tenant
func (s *TenantService) Deactivate(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error) {
	return s.transition(ctx, scope, id, func(t *identity.Tenant) error { return t.Deactivate() })
}

// Suspend suspends a tenant for compliance or payment reasons
func (s *TenantService) Suspend(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error) {
	return s.transition(ctx, scope, id, func(t *identity.Tenant) error { return t.Suspend() })
}

// QuarantineLedger marks the tenant's ledger read-only after an
// integrity violation.
func (s *TenantService) QuarantineLedger(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, reason string) (*identity.Tenant, error) {
	if err := scope.Require(identity.CapLedgerQuarantine); err != nil {
		return nil, err
	}
	if err := scope.EnsureTenant(id); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	}
	if err := tenant.QuarantineLedger(reason); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("quarantine failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to quarantine ledger")
	}

	s.recorder.Record(audit.Record(tenant.ID, &scope.UserID, audit.ActionLedgerQuarantined).
		WithEntity("tenant", tenant.ID).
		WithChange(nil, map[string]any{"reason": reason}))
	s.logger.Warn("ledger quarantined",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("reason", reason))

	return tenant, nil
}

// LiftQuarantine restores ledger writes after operator review
func (s *TenantService) LiftQuarantine(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error) {
	if err := scope.Require(identity.CapLedgerQuarantine); err != nil {
		return nil, err
	}
	if err := scope.EnsureTenant(id); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	}
	if err := tenant.LiftQuarantine(); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("lifting quarantine failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to lift quarantine")
	}

	s.logger.Info("ledger quarantine lifted", zap.String("tenant_id", tenant.ID.String()))
	return tenant, nil
}

// transition runs a status change and books the audit record
func (s *TenantService) transition(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, change func(*identity.Tenant) error) (*identity.Tenant, error) {
	tenant, err := s.manageable(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	oldStatus := tenant.Status
	if err := change(tenant); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		s.logger.Error("tenant status change failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to change tenant status")
	}

	s.recorder.Record(audit.Record(tenant.ID, &scope.UserID, audit.ActionTenantStatusChanged).
		WithEntity("tenant", tenant.ID).
		WithChange(
			map[string]any{"status": string(oldStatus)},
			map[string]any{"status": string(tenant.Status)},
		))
	s.logger.Info("tenant status changed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(tenant.Status)))

	return tenant, nil
}

// manageable loads a tenant the caller is allowed to manage
func (s *TenantService) manageable(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.Tenant, error) {
	if err := scope.Require(identity.CapTenantManage); err != nil {
		return nil, err
	}
	if err := scope.EnsureTenant(id); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	}
	return tenant, nil
}
