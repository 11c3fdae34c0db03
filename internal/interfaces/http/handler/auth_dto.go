package handler

import (
	"time"

	"github.com/google/uuid"

	appidentity "github.com/kambio/backend/internal/application/identity"
)

// LoginRequest represents the request body for user login. Clients
// identify their tenant by its public code, not its internal ID.
type LoginRequest struct {
	TenantCode string `json:"tenant_code" binding:"required,min=2,max=50"`
	Username   string `json:"username" binding:"required,min=3,max=50"`
	Password   string `json:"password" binding:"required,min=8,max=128"`
}

// TwoFactorVerifyRequest completes a login that required a second factor
type TwoFactorVerifyRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Code           string `json:"code" binding:"required,min=6,max=16"`
}

// RefreshTokenRequest represents the request body for token refresh.
// The token may come from the refresh cookie instead, so the body
// field is optional.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents the request body for logout. Like refresh,
// the token may arrive via cookie.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest represents the request body for password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
}

// TwoFactorToggleRequest carries the password re-check for enabling or
// disabling the second factor
type TwoFactorToggleRequest struct {
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents the token data in auth responses
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// AuthUserResponse represents user data in auth responses
type AuthUserResponse struct {
	ID               uuid.UUID `json:"id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Username         string    `json:"username"`
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Role             string    `json:"role"`
	KYCStatus        string    `json:"kyc_status"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	Capabilities     []string  `json:"capabilities"`
}

// LoginResponse represents the response body for login. When the
// account requires a second factor only the challenge fields are set.
type LoginResponse struct {
	TwoFactorRequired  bool              `json:"two_factor_required"`
	ChallengeToken     string            `json:"challenge_token,omitempty"`
	ChallengeExpiresAt *time.Time        `json:"challenge_expires_at,omitempty"`
	Token              *TokenResponse    `json:"token,omitempty"`
	User               *AuthUserResponse `json:"user,omitempty"`
}

// RefreshTokenResponse represents the response body for token refresh
type RefreshTokenResponse struct {
	Token TokenResponse `json:"token"`
}

// TwoFactorEnrollmentResponse carries the one-time enrollment secret.
// Backup codes are shown exactly once.
type TwoFactorEnrollmentResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

// LogoutResponse represents the response body for logout
type LogoutResponse struct {
	Message string `json:"message"`
}

func toAuthUserResponse(info appidentity.UserInfo) *AuthUserResponse {
	caps := make([]string, 0, len(info.Capabilities))
	for _, cap := range info.Capabilities {
		caps = append(caps, string(cap))
	}
	return &AuthUserResponse{
		ID:               info.ID,
		TenantID:         info.TenantID,
		Username:         info.Username,
		DisplayName:      info.DisplayName,
		Email:            info.Email,
		Phone:            info.Phone,
		Role:             string(info.Role),
		KYCStatus:        string(info.KYCStatus),
		TwoFactorEnabled: info.TwoFactorEnabled,
		Capabilities:     caps,
	}
}

func toTokenResponse(session *appidentity.Session) *TokenResponse {
	return &TokenResponse{
		AccessToken:           session.AccessToken,
		RefreshToken:          session.RefreshToken,
		AccessTokenExpiresAt:  session.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: session.RefreshTokenExpiresAt,
		TokenType:             session.TokenType,
	}
}

func toLoginResponse(result *appidentity.LoginResult) LoginResponse {
	if result.TwoFactorRequired {
		expires := result.ChallengeExpiresAt
		return LoginResponse{
			TwoFactorRequired:  true,
			ChallengeToken:     result.ChallengeToken,
			ChallengeExpiresAt: &expires,
		}
	}
	user := toAuthUserResponse(result.Session.User)
	return LoginResponse{
		Token: toTokenResponse(result.Session),
		User:  user,
	}
}
