package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/infrastructure/auth"
)

// SecretCipher encrypts sensitive fields before they are persisted.
// The TOTP secret is the only thing this service stores through it.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AuthConfig contains configuration for the auth service
type AuthConfig struct {
	MaxFailedAttempts int           // consecutive failures before lockout
	FailureWindow     time.Duration // failures older than this restart the streak
	LockDuration      time.Duration // how long a lockout lasts
	RefreshTokenTTL   time.Duration // lifetime of an issued refresh token
	BackupCodeCount   int           // backup codes issued on 2FA enrollment
}

// DefaultAuthConfig returns default configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		MaxFailedAttempts: 5,
		FailureWindow:     15 * time.Minute,
		LockDuration:      2 * time.Hour,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		BackupCodeCount:   10,
	}
}

// AuthService handles login, the two-factor step, session issuance and
// refresh-token rotation. Refresh tokens are opaque values persisted
// hashed; presenting an already-rotated token revokes the whole chain.
type AuthService struct {
	userRepo   identity.UserRepository
	tokenRepo  identity.RefreshTokenRepository
	jwtService *auth.JWTService
	totp       *auth.TOTPProvisioner
	cipher     SecretCipher
	config     AuthConfig
	recorder   *appaudit.Recorder
	logger     *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo identity.UserRepository,
	tokenRepo identity.RefreshTokenRepository,
	jwtService *auth.JWTService,
	totp *auth.TOTPProvisioner,
	cipher SecretCipher,
	config AuthConfig,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		jwtService: jwtService,
		totp:       totp,
		cipher:     cipher,
		config:     config,
		recorder:   recorder,
		logger:     logger,
	}
}

// Login authenticates a user by password. When the account has a
// second factor enabled the result carries a challenge token instead
// of a session.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.userRepo.FindByUsername(ctx, input.TenantID, input.Username)
	if err != nil {
		// Same answer as a wrong password so usernames cannot be probed.
		s.logger.Warn("login for unknown username",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("username", input.Username))
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
	}

	if err := s.checkLoginable(user); err != nil {
		return nil, err
	}

	if !user.VerifyPassword(input.Password) {
		return nil, s.recordFailure(ctx, user, input.IP, input.UserAgent)
	}

	if user.HasTwoFactor() {
		token, expiresAt, err := s.jwtService.GenerateChallengeToken(tokenInput(user))
		if err != nil {
			s.logger.Error("challenge token generation failed", zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to issue challenge")
		}
		return &LoginResult{
			TwoFactorRequired:  true,
			ChallengeToken:     token,
			ChallengeExpiresAt: expiresAt,
		}, nil
	}

	session, err := s.issueSession(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: session}, nil
}

// VerifyTwoFactor completes a login that required a second factor. The
// code is either a TOTP value or one of the single-use backup codes.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, input TwoFactorVerifyInput) (*LoginResult, error) {
	claims, err := s.jwtService.ValidateChallengeToken(input.ChallengeToken)
	if err != nil {
		if err == auth.ErrExpiredToken {
			return nil, shared.NewDomainError("TOKEN_EXPIRED", "Challenge has expired, log in again")
		}
		return nil, shared.NewDomainError("TWO_FA_INVALID", "Invalid challenge")
	}

	tenantID, err := claims.GetTenantUUID()
	if err != nil {
		return nil, shared.NewDomainError("TWO_FA_INVALID", "Invalid challenge")
	}
	userID, err := claims.GetUserUUID()
	if err != nil {
		return nil, shared.NewDomainError("TWO_FA_INVALID", "Invalid challenge")
	}

	user, err := s.userRepo.FindByID(ctx, tenantID, userID)
	if err != nil {
		return nil, shared.NewDomainError("TWO_FA_INVALID", "Invalid challenge")
	}
	if err := s.checkLoginable(user); err != nil {
		return nil, err
	}
	if !user.HasTwoFactor() {
		return nil, shared.NewDomainError("TWO_FA_INVALID", "Second factor is not enabled")
	}

	if !s.verifyCode(user, input.Code) {
		failErr := s.recordFailure(ctx, user, input.IP, input.UserAgent)
		var derr *shared.DomainError
		if errors.As(failErr, &derr) && derr.Code == "ACCOUNT_LOCKED" {
			return nil, failErr
		}
		return nil, shared.NewDomainError("TWO_FA_INVALID", "Invalid two-factor code")
	}

	session, err := s.issueSession(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: session}, nil
}

// Refresh rotates a refresh token and issues a fresh access token.
// A token that was already rotated or revoked counts as theft evidence:
// every live session of the user is terminated.
func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (*Session, error) {
	rec, err := s.tokenRepo.FindByHash(ctx, identity.HashRefreshToken(input.RefreshToken))
	if err != nil {
		return nil, shared.NewDomainError("TOKEN_INVALID", "Unknown refresh token")
	}

	if rec.IsRevoked() {
		s.logger.Warn("revoked refresh token presented",
			zap.String("user_id", rec.UserID.String()),
			zap.String("ip", input.IP))
		if err := s.tokenRepo.RevokeAllForUser(ctx, rec.TenantID, rec.UserID); err != nil {
			s.logger.Error("revoke-all after token reuse failed", zap.Error(err))
		}
		s.recorder.Record(audit.Record(rec.TenantID, &rec.UserID, audit.ActionTokenReused).
			WithEntity("refresh_token", rec.ID).
			WithRequest(input.IP, input.UserAgent))
		return nil, shared.NewDomainError("TOKEN_REUSED", "Refresh token was already used, all sessions revoked")
	}

	if rec.IsExpired() {
		return nil, shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
	}

	// A different client presenting the same token suspends the chain
	// and forces a full re-authentication.
	if input.UserAgent != "" && rec.UserAgent != "" && input.UserAgent != rec.UserAgent {
		rec.Revoke()
		if err := s.tokenRepo.Update(ctx, rec); err != nil {
			s.logger.Error("revoking suspect session failed", zap.Error(err))
		}
		s.recorder.Record(audit.Record(rec.TenantID, &rec.UserID, audit.ActionSessionSuspect).
			WithEntity("refresh_token", rec.ID).
			WithRequest(input.IP, input.UserAgent))
		return nil, shared.NewDomainError("SESSION_SUSPECT", "Session fingerprint changed, log in again")
	}

	user, err := s.userRepo.FindByID(ctx, rec.TenantID, rec.UserID)
	if err != nil {
		return nil, shared.NewDomainError("TOKEN_INVALID", "Unknown refresh token")
	}
	if !user.CanLogin() {
		return nil, shared.NewDomainError("ACCOUNT_INACTIVE", "Account is no longer active")
	}

	raw, err := newOpaqueToken()
	if err != nil {
		s.logger.Error("refresh token generation failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to rotate token")
	}
	next := rec.Rotate(raw, s.config.RefreshTokenTTL, input.IP, input.UserAgent)
	if err := s.tokenRepo.Update(ctx, rec); err != nil {
		s.logger.Error("persisting rotated-out token failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to rotate token")
	}
	if err := s.tokenRepo.Create(ctx, next); err != nil {
		s.logger.Error("persisting rotated-in token failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to rotate token")
	}

	accessToken, accessExpiresAt, err := s.jwtService.GenerateAccessToken(tokenInput(user))
	if err != nil {
		s.logger.Error("access token generation failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to issue access token")
	}

	s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionTokenRefreshed).
		WithEntity("refresh_token", next.ID).
		WithRequest(input.IP, input.UserAgent))

	return &Session{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: next.ExpiresAt,
		TokenType:             "Bearer",
		User:                  userInfo(user),
	}, nil
}

// Logout revokes the presented refresh token. Unknown tokens are
// ignored so the call is idempotent.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	rec, err := s.tokenRepo.FindByHash(ctx, identity.HashRefreshToken(input.RefreshToken))
	if err != nil {
		return nil
	}
	if rec.IsRevoked() {
		return nil
	}
	rec.Revoke()
	if err := s.tokenRepo.Update(ctx, rec); err != nil {
		s.logger.Error("revoking token on logout failed", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to log out")
	}
	return nil
}

// LogoutAll revokes every live session of the user
func (s *AuthService) LogoutAll(ctx context.Context, tenantID, userID uuid.UUID) error {
	if err := s.tokenRepo.RevokeAllForUser(ctx, tenantID, userID); err != nil {
		s.logger.Error("revoke-all failed", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to revoke sessions")
	}
	s.recorder.Record(audit.Record(tenantID, &userID, audit.ActionLogoutAll))
	return nil
}

// ChangePassword changes the user's password and terminates every
// existing session.
func (s *AuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	user, err := s.userRepo.FindByID(ctx, input.TenantID, input.UserID)
	if err != nil {
		return shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	if err := user.ChangePassword(input.OldPassword, input.NewPassword); err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("persisting password change failed", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to update password")
	}

	if err := s.tokenRepo.RevokeAllForUser(ctx, user.TenantID, user.ID); err != nil {
		s.logger.Error("revoke-all after password change failed", zap.Error(err))
	}
	s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionPasswordChanged).
		WithEntity("user", user.ID))

	s.logger.Info("password changed", zap.String("user_id", user.ID.String()))
	return nil
}

// EnableTwoFactor enrolls the user's second factor. The password is
// required again so a hijacked session cannot silently take over the
// account. Returns the secret, the otpauth URL and the raw backup
// codes for one-time display.
func (s *AuthService) EnableTwoFactor(ctx context.Context, tenantID, userID uuid.UUID, password string) (*TwoFactorEnrollment, error) {
	user, err := s.userRepo.FindByID(ctx, tenantID, userID)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	if !user.VerifyPassword(password) {
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid password")
	}

	enrollment, err := s.totp.Generate(user.Username)
	if err != nil {
		s.logger.Error("totp generation failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate second factor")
	}

	secretRef, err := s.cipher.Encrypt(enrollment.Secret)
	if err != nil {
		s.logger.Error("totp secret encryption failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to store second factor")
	}

	rawCodes, codeHashes, err := auth.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.Error("backup code generation failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate backup codes")
	}

	if err := user.EnableTwoFactor(secretRef, codeHashes); err != nil {
		return nil, err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("persisting 2fa enrollment failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to enable second factor")
	}

	s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionTwoFactorChanged).
		WithEntity("user", user.ID).
		WithChange(nil, map[string]any{"two_factor": "enabled"}))

	return &TwoFactorEnrollment{
		Secret:      enrollment.Secret,
		OTPAuthURL:  enrollment.URL,
		BackupCodes: rawCodes,
	}, nil
}

// DisableTwoFactor turns the second factor off after re-checking the
// password.
func (s *AuthService) DisableTwoFactor(ctx context.Context, tenantID, userID uuid.UUID, password string) error {
	user, err := s.userRepo.FindByID(ctx, tenantID, userID)
	if err != nil {
		return shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	if !user.VerifyPassword(password) {
		return shared.NewDomainError("INVALID_CREDENTIALS", "Invalid password")
	}

	if err := user.DisableTwoFactor(); err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("persisting 2fa disable failed", zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to disable second factor")
	}

	s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionTwoFactorChanged).
		WithEntity("user", user.ID).
		WithChange(map[string]any{"two_factor": "enabled"}, map[string]any{"two_factor": "disabled"}))

	return nil
}

// GetCurrentUser returns profile information for an authenticated user
func (s *AuthService) GetCurrentUser(ctx context.Context, tenantID, userID uuid.UUID) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, tenantID, userID)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	info := userInfo(user)
	return &info, nil
}

// checkLoginable maps the account state to the login error surface
func (s *AuthService) checkLoginable(user *identity.User) error {
	if user.CanLogin() {
		return nil
	}
	if user.IsLocked() {
		return shared.NewDomainError("ACCOUNT_LOCKED", "Account is locked, try again later")
	}
	if user.IsDeactivated() {
		return shared.NewDomainError("ACCOUNT_DEACTIVATED", "Account has been deactivated")
	}
	if user.Status == identity.UserStatusPending {
		return shared.NewDomainError("ACCOUNT_PENDING", "Account is pending activation")
	}
	return shared.NewDomainError("ACCOUNT_INACTIVE", "Account is not active")
}

// recordFailure books a failed attempt and returns the error the
// caller should surface.
func (s *AuthService) recordFailure(ctx context.Context, user *identity.User, ip, userAgent string) error {
	locked := user.RecordLoginFailure(s.config.MaxFailedAttempts, s.config.FailureWindow, s.config.LockDuration)
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error("persisting login failure failed", zap.Error(err))
	}

	if locked {
		s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionLoginLocked).
			WithEntity("user", user.ID).
			WithRequest(ip, userAgent))
		s.logger.Warn("account locked after failed attempts",
			zap.String("user_id", user.ID.String()),
			zap.Int("attempts", user.FailedAttempts))
		return shared.NewDomainError("ACCOUNT_LOCKED", "Too many failed attempts, account is locked")
	}

	s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionLoginFailure).
		WithEntity("user", user.ID).
		WithRequest(ip, userAgent))
	return shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
}

// verifyCode accepts a TOTP value or consumes a backup code
func (s *AuthService) verifyCode(user *identity.User, code string) bool {
	secret, err := s.cipher.Decrypt(user.TwoFactorSecretRef)
	if err == nil && s.totp.Verify(code, secret) {
		return true
	}
	return user.ConsumeBackupCode(code)
}

// issueSession mints the access token, persists a fresh refresh token
// and books the successful login.
func (s *AuthService) issueSession(ctx context.Context, user *identity.User, ip, userAgent string) (*Session, error) {
	accessToken, accessExpiresAt, err := s.jwtService.GenerateAccessToken(tokenInput(user))
	if err != nil {
		s.logger.Error("access token generation failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to issue access token")
	}

	raw, err := newOpaqueToken()
	if err != nil {
		s.logger.Error("refresh token generation failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to issue refresh token")
	}
	rec := identity.NewRefreshToken(user.TenantID, user.ID, raw, s.config.RefreshTokenTTL, ip, userAgent)
	if err := s.tokenRepo.Create(ctx, rec); err != nil {
		s.logger.Error("persisting refresh token failed", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to issue refresh token")
	}

	user.RecordLoginSuccess(ip)
	if err := s.userRepo.Update(ctx, user); err != nil {
		// The session is already valid, only the bookkeeping is stale.
		s.logger.Error("persisting login success failed", zap.Error(err))
	}

	s.recorder.Record(audit.Record(user.TenantID, &user.ID, audit.ActionLoginSuccess).
		WithEntity("user", user.ID).
		WithRequest(ip, userAgent))

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username))

	return &Session{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: rec.ExpiresAt,
		TokenType:             "Bearer",
		User:                  userInfo(user),
	}, nil
}

func tokenInput(user *identity.User) auth.TokenInput {
	return auth.TokenInput{
		TenantID: user.TenantID,
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	}
}

func userInfo(user *identity.User) UserInfo {
	return UserInfo{
		ID:               user.ID,
		TenantID:         user.TenantID,
		Username:         user.Username,
		DisplayName:      user.GetDisplayNameOrUsername(),
		Email:            user.Email,
		Phone:            user.Phone,
		Role:             user.Role,
		KYCStatus:        user.KYCStatus,
		TwoFactorEnabled: user.HasTwoFactor(),
		Capabilities:     identity.CapabilitiesFor(user.Role),
	}
}

// newOpaqueToken returns 32 bytes of entropy encoded for transport
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
