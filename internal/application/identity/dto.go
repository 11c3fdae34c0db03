package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kambio/backend/internal/domain/identity"
)

// LoginInput contains the input for user login
type LoginInput struct {
	TenantID  uuid.UUID
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is either a full session or a two-factor challenge. When
// TwoFactorRequired is set, Session is nil and the client must present
// ChallengeToken together with a code.
type LoginResult struct {
	TwoFactorRequired  bool
	ChallengeToken     string
	ChallengeExpiresAt time.Time
	Session            *Session
}

// Session contains the issued credentials for an authenticated user
type Session struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	TokenType             string // Bearer
	User                  UserInfo
}

// UserInfo contains basic user information returned with a session
type UserInfo struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Username         string
	DisplayName      string
	Email            string
	Phone            string
	Role             identity.UserRole
	KYCStatus        identity.KYCStatus
	TwoFactorEnabled bool
	Capabilities     []identity.Capability
}

// TwoFactorVerifyInput contains the input for the two-factor step
type TwoFactorVerifyInput struct {
	ChallengeToken string
	Code           string
	IP             string
	UserAgent      string
}

// RefreshInput contains the input for refresh-token rotation
type RefreshInput struct {
	RefreshToken string
	IP           string
	UserAgent    string
}

// LogoutInput contains the input for user logout
type LogoutInput struct {
	RefreshToken string
}

// ChangePasswordInput contains the input for password change
type ChangePasswordInput struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	OldPassword string
	NewPassword string
}

// TwoFactorEnrollment carries the generated secret for one-time
// display. The raw backup codes are never recoverable afterward.
type TwoFactorEnrollment struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}
