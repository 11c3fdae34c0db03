package tenantctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
)

func TestScopeCapabilities(t *testing.T) {
	t.Run("staff cannot approve transactions", func(t *testing.T) {
		scope := NewScope(uuid.New(), uuid.New(), identity.RoleStaff)
		assert.NoError(t, scope.Require(identity.CapTxnCreate))
		assert.ErrorIs(t, scope.Require(identity.CapTxnApprove), shared.ErrForbidden)
	})

	t.Run("manager can approve", func(t *testing.T) {
		scope := NewScope(uuid.New(), uuid.New(), identity.RoleManager)
		assert.NoError(t, scope.Require(identity.CapTxnApprove))
	})
}

func TestServiceScope(t *testing.T) {
	tenantID := uuid.New()
	scope := ServiceScope(tenantID)

	assert.NoError(t, scope.Require(identity.CapJournalPost))
	assert.NoError(t, scope.Require(identity.CapBalanceAdjust))
	assert.NoError(t, scope.EnsureTenant(tenantID))
	assert.ErrorIs(t, scope.EnsureTenant(uuid.New()), shared.ErrCrossTenant)
	assert.Equal(t, uuid.Nil, scope.UserID)
}

func TestCrossTenantGuard(t *testing.T) {
	tenantID := uuid.New()
	otherID := uuid.New()

	t.Run("own tenant passes", func(t *testing.T) {
		scope := NewScope(uuid.New(), tenantID, identity.RoleTenantAdmin)
		assert.NoError(t, scope.EnsureTenant(tenantID))
		assert.NoError(t, scope.EnsureTenant(uuid.Nil))
	})

	t.Run("foreign tenant rejected", func(t *testing.T) {
		scope := NewScope(uuid.New(), tenantID, identity.RoleTenantAdmin)
		assert.ErrorIs(t, scope.EnsureTenant(otherID), shared.ErrCrossTenant)
	})

	t.Run("all-tenants view reserved to super admin", func(t *testing.T) {
		admin := NewScope(uuid.New(), tenantID, identity.RoleSuperAdmin)
		wide, err := admin.WithAllTenants()
		require.NoError(t, err)
		assert.NoError(t, wide.EnsureTenant(otherID))

		tenantAdmin := NewScope(uuid.New(), tenantID, identity.RoleTenantAdmin)
		_, err = tenantAdmin.WithAllTenants()
		assert.ErrorIs(t, err, shared.ErrCrossTenant)
	})
}

func TestContextRoundTrip(t *testing.T) {
	scope := NewScope(uuid.New(), uuid.New(), identity.RoleCustomer)
	ctx := WithScope(context.Background(), scope)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, scope, got)

	_, err = FromContext(context.Background())
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}
