package tenantctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
)

// Scope is the authenticated subject every core operation runs under.
// All repository access is restricted to TenantID unless AllTenants is
// set, which only super admins may request.
type Scope struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Role       identity.UserRole
	AllTenants bool
}

// NewScope builds a scope for an authenticated subject
func NewScope(userID, tenantID uuid.UUID, role identity.UserRole) Scope {
	return Scope{UserID: userID, TenantID: tenantID, Role: role}
}

// ServiceScope is the scope the platform acts under when an
// orchestrator or background job completes work inside a tenant on its
// own authority: settlement postings, recovery sweeps. It carries
// tenant-admin capabilities, no user identity, and stays bound to one
// tenant.
func ServiceScope(tenantID uuid.UUID) Scope {
	return Scope{TenantID: tenantID, Role: identity.RoleTenantAdmin}
}

// WithAllTenants requests a cross-tenant view. Only super admins hold
// the capability; callers must audit the grant at high risk.
func (s Scope) WithAllTenants() (Scope, error) {
	if !identity.HasCapability(s.Role, identity.CapCrossTenantView) {
		return s, shared.ErrCrossTenant
	}
	s.AllTenants = true
	return s, nil
}

// Require rejects the call when the role lacks the capability
func (s Scope) Require(cap identity.Capability) error {
	if !identity.HasCapability(s.Role, cap) {
		return shared.ErrForbidden
	}
	return nil
}

// EnsureTenant rejects any attempt to address another tenant's data.
// A nil target means "my tenant" and always passes.
func (s Scope) EnsureTenant(target uuid.UUID) error {
	if target == uuid.Nil || target == s.TenantID {
		return nil
	}
	if s.AllTenants {
		return nil
	}
	return shared.ErrCrossTenant
}

type scopeKey struct{}

// WithScope attaches a scope to the context
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext extracts the scope; absence means the caller skipped
// authentication and the operation must be refused.
func FromContext(ctx context.Context) (Scope, error) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok {
		return Scope{}, shared.ErrUnauthorized
	}
	return scope, nil
}
