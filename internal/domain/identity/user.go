package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kambio/backend/internal/domain/shared"
)

// UserStatus is the lifecycle state of a user account
type UserStatus string

const (
	UserStatusPending     UserStatus = "pending"
	UserStatusActive      UserStatus = "active"
	UserStatusLocked      UserStatus = "locked"
	UserStatusDeactivated UserStatus = "deactivated"
)

// UserRole decides the capability set, see capability.go
type UserRole string

const (
	RoleSuperAdmin  UserRole = "super_admin"  // platform operator, may cross tenants
	RoleTenantAdmin UserRole = "tenant_admin" // full control within own tenant
	RoleManager     UserRole = "manager"      // approves and manages transactions
	RoleStaff       UserRole = "staff"        // front-office operations
	RoleCustomer    UserRole = "customer"     // end customer with wallet accounts
)

// KYCStatus is the know-your-customer verdict for a user
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// TwoFactorState tracks whether the second factor is active
type TwoFactorState string

const (
	TwoFactorDisabled TwoFactorState = "disabled"
	TwoFactorEnabled  TwoFactorState = "enabled"
)

const bcryptCost = 12

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	letterPattern   = regexp.MustCompile(`[a-zA-Z]`)
	digitPattern    = regexp.MustCompile(`[0-9]`)
)

// User is the aggregate root for everyone who can sign in: desk staff,
// tenant admins and end customers alike. The TOTP secret is stored
// encrypted elsewhere; the aggregate only carries an opaque handle.
type User struct {
	shared.TenantAggregateRoot
	Username           string
	Email              string
	Phone              string
	PasswordHash       string
	DisplayName        string
	Role               UserRole
	Status             UserStatus
	KYCStatus          KYCStatus
	TwoFactor          TwoFactorState
	TwoFactorSecretRef string
	BackupCodeHashes   []string
	LastLoginAt        *time.Time
	LastLoginIP        string
	FailedAttempts     int
	LastFailedAt       *time.Time
	LockedUntil        *time.Time
	PasswordChangedAt  *time.Time
	MustChangePassword bool
	Notes              string
}

// NewUser creates a pending user. Usernames are case-insensitive and
// stored lowercased.
func NewUser(tenantID uuid.UUID, username, password string, role UserRole) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}

	now := time.Now()
	user := &User{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Username:            strings.ToLower(strings.TrimSpace(username)),
		PasswordHash:        hash,
		Role:                role,
		Status:              UserStatusPending,
		KYCStatus:           KYCStatusPending,
		TwoFactor:           TwoFactorDisabled,
		PasswordChangedAt:   &now,
	}
	user.AddDomainEvent(NewUserCreatedEvent(user))
	return user, nil
}

// NewActiveUser creates a user that skips the pending state
func NewActiveUser(tenantID uuid.UUID, username, password string, role UserRole) (*User, error) {
	user, err := NewUser(tenantID, username, password, role)
	if err != nil {
		return nil, err
	}
	user.Status = UserStatusActive
	return user, nil
}

func (u *User) touch() {
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
}

// SetEmail sets the user's email, empty clears it
func (u *User) SetEmail(email string) error {
	if email != "" {
		if err := validateEmail(email); err != nil {
			return err
		}
		email = strings.ToLower(strings.TrimSpace(email))
	}
	u.Email = email
	u.touch()
	return nil
}

func (u *User) SetPhone(phone string) error {
	if len(phone) > 50 {
		return shared.NewDomainError("INVALID_PHONE", "Phone cannot exceed 50 characters")
	}
	u.Phone = strings.TrimSpace(phone)
	u.touch()
	return nil
}

func (u *User) SetDisplayName(displayName string) error {
	if len(displayName) > 200 {
		return shared.NewDomainError("INVALID_DISPLAY_NAME", "Display name cannot exceed 200 characters")
	}
	u.DisplayName = strings.TrimSpace(displayName)
	u.touch()
	return nil
}

func (u *User) SetNotes(notes string) {
	u.Notes = notes
	u.touch()
}

// ChangeRole moves the user to another role
func (u *User) ChangeRole(role UserRole) error {
	if err := validateRole(role); err != nil {
		return err
	}
	if u.Role == role {
		return shared.NewDomainError("ROLE_UNCHANGED", "User already has this role")
	}

	oldRole := u.Role
	u.Role = role
	u.touch()
	u.AddDomainEvent(NewUserRoleChangedEvent(u, oldRole, role))
	return nil
}

// ChangePassword replaces the password after checking the current one
func (u *User) ChangePassword(oldPassword, newPassword string) error {
	if !u.VerifyPassword(oldPassword) {
		return shared.NewDomainError("INVALID_PASSWORD", "Current password is incorrect")
	}
	return u.SetPassword(newPassword)
}

// SetPassword replaces the password without a current-password check,
// used by admin resets.
func (u *User) SetPassword(newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}

	now := time.Now()
	u.PasswordHash = hash
	u.PasswordChangedAt = &now
	u.MustChangePassword = false
	u.touch()
	u.AddDomainEvent(NewUserPasswordChangedEvent(u))
	return nil
}

// ForcePasswordChange requires a new password on the next login
func (u *User) ForcePasswordChange() {
	u.MustChangePassword = true
	u.touch()
}

func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// EnableTwoFactor turns the second factor on, storing the encrypted
// secret handle and the hashed backup codes.
func (u *User) EnableTwoFactor(secretRef string, backupCodeHashes []string) error {
	if secretRef == "" {
		return shared.NewDomainError("INVALID_2FA_SECRET", "Two-factor secret reference cannot be empty")
	}
	if u.TwoFactor == TwoFactorEnabled {
		return shared.NewDomainError("2FA_ALREADY_ENABLED", "Two-factor authentication is already enabled")
	}

	u.TwoFactor = TwoFactorEnabled
	u.TwoFactorSecretRef = secretRef
	u.BackupCodeHashes = backupCodeHashes
	u.touch()
	u.AddDomainEvent(NewUserTwoFactorChangedEvent(u, true))
	return nil
}

// DisableTwoFactor turns the second factor off and discards the secret
// handle and the backup codes.
func (u *User) DisableTwoFactor() error {
	if u.TwoFactor != TwoFactorEnabled {
		return shared.NewDomainError("2FA_NOT_ENABLED", "Two-factor authentication is not enabled")
	}

	u.TwoFactor = TwoFactorDisabled
	u.TwoFactorSecretRef = ""
	u.BackupCodeHashes = nil
	u.touch()
	u.AddDomainEvent(NewUserTwoFactorChangedEvent(u, false))
	return nil
}

// ConsumeBackupCode checks a backup code against the stored hashes and
// burns it on match. Each code works once.
func (u *User) ConsumeBackupCode(code string) bool {
	for i, hash := range u.BackupCodeHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			u.BackupCodeHashes = append(u.BackupCodeHashes[:i], u.BackupCodeHashes[i+1:]...)
			u.touch()
			return true
		}
	}
	return false
}

func (u *User) HasTwoFactor() bool {
	return u.TwoFactor == TwoFactorEnabled
}

// ApproveKYC records an approved verdict
func (u *User) ApproveKYC() error {
	if u.KYCStatus == KYCStatusApproved {
		return shared.NewDomainError("KYC_ALREADY_APPROVED", "KYC is already approved")
	}
	u.KYCStatus = KYCStatusApproved
	u.touch()
	u.AddDomainEvent(NewUserKYCChangedEvent(u, KYCStatusApproved))
	return nil
}

// RejectKYC records a rejected verdict
func (u *User) RejectKYC() error {
	if u.KYCStatus == KYCStatusRejected {
		return shared.NewDomainError("KYC_ALREADY_REJECTED", "KYC is already rejected")
	}
	u.KYCStatus = KYCStatusRejected
	u.touch()
	u.AddDomainEvent(NewUserKYCChangedEvent(u, KYCStatusRejected))
	return nil
}

// Activate moves the user to active and clears any lockout residue
func (u *User) Activate() error {
	if u.Status == UserStatusActive {
		return shared.NewDomainError("ALREADY_ACTIVE", "User is already active")
	}

	oldStatus := u.Status
	u.Status = UserStatusActive
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.touch()
	u.AddDomainEvent(NewUserStatusChangedEvent(u, oldStatus, UserStatusActive))
	return nil
}

func (u *User) Deactivate() error {
	if u.Status == UserStatusDeactivated {
		return shared.NewDomainError("ALREADY_DEACTIVATED", "User is already deactivated")
	}

	oldStatus := u.Status
	u.Status = UserStatusDeactivated
	u.touch()
	u.AddDomainEvent(NewUserStatusChangedEvent(u, oldStatus, UserStatusDeactivated))
	return nil
}

// Lock blocks the account, until the given moment when duration is
// positive, indefinitely otherwise.
func (u *User) Lock(duration time.Duration) error {
	if u.Status == UserStatusDeactivated {
		return shared.NewDomainError("USER_DEACTIVATED", "Cannot lock a deactivated user")
	}

	oldStatus := u.Status
	u.Status = UserStatusLocked
	if duration > 0 {
		until := time.Now().Add(duration)
		u.LockedUntil = &until
	}
	u.touch()
	u.AddDomainEvent(NewUserStatusChangedEvent(u, oldStatus, UserStatusLocked))
	return nil
}

// Unlock clears a lockout and the failure counter
func (u *User) Unlock() error {
	if u.Status != UserStatusLocked {
		return shared.NewDomainError("NOT_LOCKED", "User is not locked")
	}

	u.Status = UserStatusActive
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.touch()
	u.AddDomainEvent(NewUserStatusChangedEvent(u, UserStatusLocked, UserStatusActive))
	return nil
}

// RecordLoginSuccess stamps the login and resets the failure streak
func (u *User) RecordLoginSuccess(ip string) {
	now := time.Now()
	u.LastLoginAt = &now
	u.LastLoginIP = ip
	u.FailedAttempts = 0
	u.LastFailedAt = nil
	u.touch()
}

// RecordLoginFailure counts a failed attempt. Failures further apart
// than the window do not chain; an old streak restarts at one. Reports
// whether this failure locked the account.
func (u *User) RecordLoginFailure(maxAttempts int, window, lockDuration time.Duration) bool {
	now := time.Now()
	if u.LastFailedAt != nil && now.Sub(*u.LastFailedAt) > window {
		u.FailedAttempts = 0
	}
	u.FailedAttempts++
	u.LastFailedAt = &now
	u.touch()

	if u.FailedAttempts >= maxAttempts {
		_ = u.Lock(lockDuration)
		return true
	}
	return false
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsLocked reports a lockout that has not yet expired
func (u *User) IsLocked() bool {
	if u.Status != UserStatusLocked {
		return false
	}
	if u.LockedUntil != nil && time.Now().After(*u.LockedUntil) {
		return false
	}
	return true
}

func (u *User) IsDeactivated() bool {
	return u.Status == UserStatusDeactivated
}

func (u *User) IsKYCApproved() bool {
	return u.KYCStatus == KYCStatusApproved
}

// CanLogin refuses pending, deactivated and currently locked users
func (u *User) CanLogin() bool {
	switch u.Status {
	case UserStatusPending, UserStatusDeactivated:
		return false
	}
	return !u.IsLocked()
}

// GetDisplayNameOrUsername falls back to the username
func (u *User) GetDisplayNameOrUsername() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func validateUsername(username string) error {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	case len(username) < 3:
		return shared.NewDomainError("INVALID_USERNAME", "Username must be at least 3 characters")
	case len(username) > 100:
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot exceed 100 characters")
	case !usernamePattern.MatchString(username):
		return shared.NewDomainError("INVALID_USERNAME", "Username can only contain letters, numbers, underscores, hyphens, and dots")
	}
	return nil
}

func validatePassword(password string) error {
	switch {
	case password == "":
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot be empty")
	case len(password) < 8:
		return shared.NewDomainError("INVALID_PASSWORD", "Password must be at least 8 characters")
	case len(password) > 128:
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot exceed 128 characters")
	case !letterPattern.MatchString(password) || !digitPattern.MatchString(password):
		return shared.NewDomainError("INVALID_PASSWORD", "Password must contain at least one letter and one number")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	if !emailPattern.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}

func validateRole(role UserRole) error {
	switch role {
	case RoleSuperAdmin, RoleTenantAdmin, RoleManager, RoleStaff, RoleCustomer:
		return nil
	default:
		return shared.NewDomainError("INVALID_ROLE", "Invalid user role")
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
