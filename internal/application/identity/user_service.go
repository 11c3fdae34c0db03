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

// UserService manages the users of a tenant, including staff
// onboarding and KYC review for customers.
type UserService struct {
	userRepo   identity.UserRepository
	tenantRepo identity.TenantRepository
	recorder   *appaudit.Recorder
	logger     *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(
	userRepo identity.UserRepository,
	tenantRepo identity.TenantRepository,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:   userRepo,
		tenantRepo: tenantRepo,
		recorder:   recorder,
		logger:     logger,
	}
}

// CreateUserInput contains input for creating a user
type CreateUserInput struct {
	Username    string
	Password    string
	Role        identity.UserRole
	Email       string
	Phone       string
	DisplayName string
	Active      bool // create directly in active status
}

// UpdateUserInput contains input for updating a user's profile
type UpdateUserInput struct {
	Email       *string
	Phone       *string
	DisplayName *string
	Notes       *string
}

// Create adds a user to the caller's tenant
func (s *UserService) Create(ctx context.Context, scope tenantctx.Scope, input CreateUserInput) (*identity.User, error) {
	if err := scope.Require(identity.CapUserCreate); err != nil {
		return nil, err
	}
	// Platform operator accounts are provisioned out of band, never
	// through the tenant-facing API.
	if input.Role == identity.RoleSuperAdmin {
		return nil, shared.ErrForbidden
	}

	tenant, err := s.tenantRepo.FindByID(ctx, scope.TenantID)
	if err != nil {
		return nil, shared.NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	}
	count, err := s.userRepo.Count(ctx, scope.TenantID)
	if err != nil {
		s.logger.Error("user count failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check user limit")
	}
	// Customers do not consume staff seats.
	if input.Role != identity.RoleCustomer && !tenant.CanAddUser(int(count)) {
		return nil, shared.NewDomainError("USER_LIMIT_REACHED", "Plan does not allow more users")
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, scope.TenantID, input.Username)
	if err != nil {
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check username availability")
	}
	if exists {
		return nil, shared.NewDomainError("USERNAME_EXISTS", "Username already taken")
	}

	var user *identity.User
	if input.Active {
		user, err = identity.NewActiveUser(scope.TenantID, input.Username, input.Password, input.Role)
	} else {
		user, err = identity.NewUser(scope.TenantID, input.Username, input.Password, input.Role)
	}
	if err != nil {
		return nil, err
	}

	if input.Email != "" {
		exists, err := s.userRepo.ExistsByEmail(ctx, scope.TenantID, input.Email)
		if err != nil {
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to check email availability")
		}
		if exists {
			return nil, shared.NewDomainError("EMAIL_EXISTS", "Email already registered")
		}
		if err := user.SetEmail(input.Email); err != nil {
			return nil, err
		}
	}
	if input.Phone != "" {
		if err := user.SetPhone(input.Phone); err != nil {
			return nil, err
		}
	}
	if input.DisplayName != "" {
		if err := user.SetDisplayName(input.DisplayName); err != nil {
			return nil, err
		}
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.Error("user create failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create user")
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)))

	return user, nil
}

// Get retrieves a user. Anyone may read their own record; reading
// others requires management capability.
func (s *UserService) Get(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.User, error) {
	if id != scope.UserID {
		if err := scope.Require(identity.CapUserManage); err != nil {
			return nil, err
		}
	}
	user, err := s.userRepo.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	return user, nil
}

// List returns the tenant's users
func (s *UserService) List(ctx context.Context, scope tenantctx.Scope, filter identity.UserFilter) ([]*identity.User, int64, error) {
	if err := scope.Require(identity.CapUserManage); err != nil {
		return nil, 0, err
	}
	users, total, err := s.userRepo.FindAll(ctx, scope.TenantID, filter)
	if err != nil {
		s.logger.Error("user list failed", zap.Error(err))
		return nil, 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to list users")
	}
	return users, total, nil
}

// Update updates a user's profile. Self-service is allowed.
func (s *UserService) Update(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, input UpdateUserInput) (*identity.User, error) {
	if id != scope.UserID {
		if err := scope.Require(identity.CapUserManage); err != nil {
			return nil, err
		}
	}

	user, err := s.userRepo.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	if input.Email != nil {
		if err := user.SetEmail(*input.Email); err != nil {
			return nil, err
		}
	}
	if input.Phone != nil {
		if err := user.SetPhone(*input.Phone); err != nil {
			return nil, err
		}
	}
	if input.DisplayName != nil {
		if err := user.SetDisplayName(*input.DisplayName); err != nil {
			return nil, err
		}
	}
	if input.Notes != nil {
		user.SetNotes(*input.Notes)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("user update failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update user")
	}
	return user, nil
}

// ChangeRole changes a user's role within the tenant
func (s *UserService) ChangeRole(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, role identity.UserRole) (*identity.User, error) {
	if err := scope.Require(identity.CapUserManage); err != nil {
		return nil, err
	}
	if role == identity.RoleSuperAdmin {
		return nil, shared.ErrForbidden
	}

	user, err := s.userRepo.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	if err := user.ChangeRole(role); err != nil {
		return nil, err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("role change failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to change role")
	}

	s.logger.Info("user role changed",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(role)))
	return user, nil
}

// Activate activates a user
func (s *UserService) Activate(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.User, error) {
	return s.mutate(ctx, scope, id, func(u *identity.User) error { return u.Activate() })
}

// Deactivate deactivates a user
func (s *UserService) Deactivate(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.User, error) {
	return s.mutate(ctx, scope, id, func(u *identity.User) error { return u.Deactivate() })
}

// Unlock clears a lockout before it expires on its own
func (s *UserService) Unlock(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (*identity.User, error) {
	return s.mutate(ctx, scope, id, func(u *identity.User) error { return u.Unlock() })
}

// ResetPassword sets a new password on behalf of the user and forces a
// change at next login.
func (s *UserService) ResetPassword(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, newPassword string) error {
	if err := scope.Require(identity.CapUserManage); err != nil {
		return err
	}
	user, err := s.userRepo.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	user.ForcePasswordChange()
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("password reset failed", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to reset password")
	}

	s.recorder.Record(audit.Record(user.TenantID, &scope.UserID, audit.ActionPasswordChanged).
		WithEntity("user", user.ID))
	return nil
}

// ReviewKYC records the compliance verdict for a customer
func (s *UserService) ReviewKYC(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, verdict identity.KYCStatus) (*identity.User, error) {
	if err := scope.Require(identity.CapUserKYCReview); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	oldStatus := user.KYCStatus
	switch verdict {
	case identity.KYCStatusApproved:
		err = user.ApproveKYC()
	case identity.KYCStatusRejected:
		err = user.RejectKYC()
	default:
		return nil, shared.NewDomainError("INVALID_KYC_VERDICT", "Verdict must be approved or rejected")
	}
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("kyc review failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to record KYC verdict")
	}

	s.recorder.Record(audit.Record(user.TenantID, &scope.UserID, audit.ActionUserKYCReviewed).
		WithEntity("user", user.ID).
		WithChange(
			map[string]any{"kyc_status": string(oldStatus)},
			map[string]any{"kyc_status": string(user.KYCStatus)},
		))
	s.logger.Info("kyc reviewed",
		zap.String("user_id", user.ID.String()),
		zap.String("verdict", string(verdict)))

	return user, nil
}

// mutate runs a management-gated state change on a user
func (s *UserService) mutate(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, change func(*identity.User) error) (*identity.User, error) {
	if err := scope.Require(identity.CapUserManage); err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(ctx, scope.TenantID, id)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	if err := change(user); err != nil {
		return nil, err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("user state change failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update user")
	}
	return user, nil
}
