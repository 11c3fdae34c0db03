package models

import (
	"time"

	"github.com/kambio/backend/internal/domain/identity"
)

// UserModel is the persistence model for the User domain entity.
type UserModel struct {
	TenantAggregateModel
	Username           string                  `gorm:"type:varchar(100);not null;index"`
	Email              string                  `gorm:"type:varchar(200);index"`
	Phone              string                  `gorm:"type:varchar(50)"`
	PasswordHash       string                  `gorm:"type:varchar(255);not null"`
	DisplayName        string                  `gorm:"type:varchar(200)"`
	Role               identity.UserRole       `gorm:"type:varchar(20);not null;default:'customer'"`
	Status             identity.UserStatus     `gorm:"type:varchar(20);not null;default:'pending'"`
	KYCStatus          identity.KYCStatus      `gorm:"column:kyc_status;type:varchar(20);not null;default:'pending'"`
	TwoFactor          identity.TwoFactorState `gorm:"type:varchar(20);not null;default:'disabled'"`
	TwoFactorSecretRef string                  `gorm:"type:varchar(500)"`
	BackupCodeHashes   string                  `gorm:"type:jsonb;default:'[]'"`
	LastLoginAt        *time.Time              `gorm:"index"`
	LastLoginIP        string                  `gorm:"type:varchar(45)"`
	FailedAttempts     int                     `gorm:"not null;default:0"`
	LastFailedAt       *time.Time
	LockedUntil        *time.Time
	PasswordChangedAt  *time.Time
	MustChangePassword bool   `gorm:"not null;default:false"`
	Notes              string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User entity.
// Note: BackupCodeHashes must be JSON-decoded by the repository.
func (m *UserModel) ToDomain() *identity.User {
	return &identity.User{
		TenantAggregateRoot: m.ToTenantAggregateRoot(),
		Username:           m.Username,
		Email:              m.Email,
		Phone:              m.Phone,
		PasswordHash:       m.PasswordHash,
		DisplayName:        m.DisplayName,
		Role:               m.Role,
		Status:             m.Status,
		KYCStatus:          m.KYCStatus,
		TwoFactor:          m.TwoFactor,
		TwoFactorSecretRef: m.TwoFactorSecretRef,
		BackupCodeHashes:   make([]string, 0), // Decoded by the repository
		LastLoginAt:        m.LastLoginAt,
		LastLoginIP:        m.LastLoginIP,
		FailedAttempts:     m.FailedAttempts,
		LastFailedAt:       m.LastFailedAt,
		LockedUntil:        m.LockedUntil,
		PasswordChangedAt:  m.PasswordChangedAt,
		MustChangePassword: m.MustChangePassword,
		Notes:              m.Notes,
	}
}

// FromDomain populates the persistence model from a domain User entity.
// Note: backupCodesJSON must be JSON-encoded by the repository.
func (m *UserModel) FromDomain(u *identity.User, backupCodesJSON string) {
	m.FromDomainTenantAggregateRoot(u.TenantAggregateRoot)
	m.Username = u.Username
	m.Email = u.Email
	m.Phone = u.Phone
	m.PasswordHash = u.PasswordHash
	m.DisplayName = u.DisplayName
	m.Role = u.Role
	m.Status = u.Status
	m.KYCStatus = u.KYCStatus
	m.TwoFactor = u.TwoFactor
	m.TwoFactorSecretRef = u.TwoFactorSecretRef
	m.BackupCodeHashes = backupCodesJSON
	m.LastLoginAt = u.LastLoginAt
	m.LastLoginIP = u.LastLoginIP
	m.FailedAttempts = u.FailedAttempts
	m.LastFailedAt = u.LastFailedAt
	m.LockedUntil = u.LockedUntil
	m.PasswordChangedAt = u.PasswordChangedAt
	m.MustChangePassword = u.MustChangePassword
	m.Notes = u.Notes
}

// UserModelFromDomain creates a new persistence model from a domain User entity.
func UserModelFromDomain(u *identity.User, backupCodesJSON string) *UserModel {
	m := &UserModel{}
	m.FromDomain(u, backupCodesJSON)
	return m
}
