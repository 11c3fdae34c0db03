package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewUser(t *testing.T) {
	tenantID := uuid.New()

	t.Run("creates user with valid username and password", func(t *testing.T) {
		user, err := NewUser(tenantID, "testuser", "Password123", RoleStaff)

		require.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, tenantID, user.TenantID)
		assert.Equal(t, "testuser", user.Username)
		assert.NotEmpty(t, user.PasswordHash)
		assert.Equal(t, RoleStaff, user.Role)
		assert.Equal(t, UserStatusPending, user.Status)
		assert.Equal(t, KYCStatusPending, user.KYCStatus)
		assert.Equal(t, TwoFactorDisabled, user.TwoFactor)
		assert.NotNil(t, user.PasswordChangedAt)

		// Should have domain event
		events := user.GetDomainEvents()
		assert.Len(t, events, 1)
		_, ok := events[0].(*UserCreatedEvent)
		assert.True(t, ok)
	})

	t.Run("normalizes username to lowercase", func(t *testing.T) {
		user, err := NewUser(tenantID, "TestUser", "Password123", RoleStaff)

		require.NoError(t, err)
		assert.Equal(t, "testuser", user.Username)
	})

	t.Run("fails with empty username", func(t *testing.T) {
		_, err := NewUser(tenantID, "", "Password123", RoleStaff)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be empty")
	})

	t.Run("fails with short password", func(t *testing.T) {
		_, err := NewUser(tenantID, "testuser", "Pass1", RoleStaff)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})

	t.Run("fails with password lacking digits", func(t *testing.T) {
		_, err := NewUser(tenantID, "testuser", "PasswordOnly", RoleStaff)

		assert.Error(t, err)
	})

	t.Run("fails with unknown role", func(t *testing.T) {
		_, err := NewUser(tenantID, "testuser", "Password123", UserRole("owner"))

		assert.Error(t, err)
	})

	t.Run("active user factory", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleCustomer)

		require.NoError(t, err)
		assert.Equal(t, UserStatusActive, user.Status)
	})
}

func TestUserPassword(t *testing.T) {
	tenantID := uuid.New()

	t.Run("verify password", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		assert.True(t, user.VerifyPassword("Password123"))
		assert.False(t, user.VerifyPassword("wrong"))
	})

	t.Run("change password requires current password", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		err = user.ChangePassword("wrong", "NewPassword456")
		assert.Error(t, err)

		err = user.ChangePassword("Password123", "NewPassword456")
		require.NoError(t, err)
		assert.True(t, user.VerifyPassword("NewPassword456"))
		assert.False(t, user.MustChangePassword)
	})

	t.Run("admin reset clears force-change flag", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		user.ForcePasswordChange()
		assert.True(t, user.MustChangePassword)

		require.NoError(t, user.SetPassword("NewPassword456"))
		assert.False(t, user.MustChangePassword)
	})
}

func TestUserLockout(t *testing.T) {
	tenantID := uuid.New()

	t.Run("locks after max failed attempts", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			locked := user.RecordLoginFailure(5, 15*time.Minute, 2*time.Hour)
			assert.False(t, locked)
		}
		locked := user.RecordLoginFailure(5, 15*time.Minute, 2*time.Hour)
		assert.True(t, locked)
		assert.Equal(t, UserStatusLocked, user.Status)
		assert.NotNil(t, user.LockedUntil)
		assert.True(t, user.IsLocked())
		assert.False(t, user.CanLogin())
	})

	t.Run("lock expires after duration", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		require.NoError(t, user.Lock(time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		assert.False(t, user.IsLocked())
	})

	t.Run("stale streak restarts the count", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			user.RecordLoginFailure(5, 15*time.Minute, 2*time.Hour)
		}
		past := time.Now().Add(-time.Hour)
		user.LastFailedAt = &past

		locked := user.RecordLoginFailure(5, 15*time.Minute, 2*time.Hour)
		assert.False(t, locked)
		assert.Equal(t, 1, user.FailedAttempts)
	})

	t.Run("successful login resets failed attempts", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		user.RecordLoginFailure(5, 15*time.Minute, 2*time.Hour)
		user.RecordLoginFailure(5, 15*time.Minute, 2*time.Hour)
		user.RecordLoginSuccess("10.0.0.1")

		assert.Equal(t, 0, user.FailedAttempts)
		assert.Equal(t, "10.0.0.1", user.LastLoginIP)
		assert.NotNil(t, user.LastLoginAt)
	})

	t.Run("unlock restores active status", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		require.NoError(t, user.Lock(2*time.Hour))
		require.NoError(t, user.Unlock())
		assert.Equal(t, UserStatusActive, user.Status)
		assert.Nil(t, user.LockedUntil)
	})
}

func TestUserTwoFactor(t *testing.T) {
	tenantID := uuid.New()

	t.Run("enable and disable", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		require.NoError(t, user.EnableTwoFactor("secret-ref-1", nil))
		assert.True(t, user.HasTwoFactor())

		err = user.EnableTwoFactor("secret-ref-2", nil)
		assert.Error(t, err)

		require.NoError(t, user.DisableTwoFactor())
		assert.False(t, user.HasTwoFactor())
		assert.Empty(t, user.TwoFactorSecretRef)
	})

	t.Run("enable rejects empty secret ref", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		assert.Error(t, user.EnableTwoFactor("", nil))
	})

	t.Run("backup codes are single use", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		hash, err := bcrypt.GenerateFromPassword([]byte("code-1234"), bcrypt.MinCost)
		require.NoError(t, err)
		require.NoError(t, user.EnableTwoFactor("secret-ref", []string{string(hash)}))

		assert.True(t, user.ConsumeBackupCode("code-1234"))
		assert.False(t, user.ConsumeBackupCode("code-1234"))
		assert.Empty(t, user.BackupCodeHashes)
	})
}

func TestUserKYC(t *testing.T) {
	tenantID := uuid.New()

	t.Run("approve and reject verdicts", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleCustomer)
		require.NoError(t, err)

		require.NoError(t, user.ApproveKYC())
		assert.True(t, user.IsKYCApproved())
		assert.Error(t, user.ApproveKYC())

		require.NoError(t, user.RejectKYC())
		assert.False(t, user.IsKYCApproved())
		assert.Error(t, user.RejectKYC())
	})
}

func TestUserRole(t *testing.T) {
	tenantID := uuid.New()

	t.Run("change role", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		require.NoError(t, user.ChangeRole(RoleManager))
		assert.Equal(t, RoleManager, user.Role)

		err = user.ChangeRole(RoleManager)
		assert.Error(t, err)
	})
}

func TestUserStatusTransitions(t *testing.T) {
	tenantID := uuid.New()

	t.Run("deactivated user cannot be locked", func(t *testing.T) {
		user, err := NewActiveUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		require.NoError(t, user.Deactivate())
		assert.Error(t, user.Lock(time.Hour))
		assert.False(t, user.CanLogin())
	})

	t.Run("pending user cannot login", func(t *testing.T) {
		user, err := NewUser(tenantID, "testuser", "Password123", RoleStaff)
		require.NoError(t, err)

		assert.False(t, user.CanLogin())

		require.NoError(t, user.Activate())
		assert.True(t, user.CanLogin())
	})
}

func TestCapabilities(t *testing.T) {
	t.Run("role capability map", func(t *testing.T) {
		assert.True(t, HasCapability(RoleSuperAdmin, CapCrossTenantView))
		assert.True(t, HasCapability(RoleTenantAdmin, CapJournalPost))
		assert.False(t, HasCapability(RoleTenantAdmin, CapCrossTenantView))
		assert.True(t, HasCapability(RoleManager, CapTxnApprove))
		assert.False(t, HasCapability(RoleStaff, CapTxnApprove))
		assert.True(t, HasCapability(RoleCustomer, CapTxnCreate))
		assert.True(t, HasCapability(RoleCustomer, CapTxnCancel))
		assert.False(t, HasCapability(RoleCustomer, CapJournalView))
	})

	t.Run("capabilities list is a copy", func(t *testing.T) {
		caps := CapabilitiesFor(RoleStaff)
		require.NotEmpty(t, caps)
		caps[0] = Capability("mutated")
		assert.NotEqual(t, Capability("mutated"), CapabilitiesFor(RoleStaff)[0])
	})
}
