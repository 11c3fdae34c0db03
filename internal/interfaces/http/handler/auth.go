package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appidentity "github.com/kambio/backend/internal/application/identity"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/infrastructure/auth"
	"github.com/kambio/backend/internal/infrastructure/config"
	"github.com/kambio/backend/internal/interfaces/http/middleware"
)

// refreshCookieName is the HttpOnly cookie mirroring the refresh token
// for browser clients. API clients keep using the response body.
const refreshCookieName = "kambio_refresh"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	BaseHandler
	authService *appidentity.AuthService
	tenantRepo  identity.TenantRepository
	blacklist   auth.TokenBlacklist
	cookies     config.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *appidentity.AuthService, tenantRepo identity.TenantRepository, blacklist auth.TokenBlacklist, cookies config.CookieConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tenantRepo:  tenantRepo,
		blacklist:   blacklist,
		cookies:     cookies,
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, session *appidentity.Session) {
	if session == nil || session.RefreshToken == "" {
		return
	}
	maxAge := int(time.Until(session.RefreshTokenExpiresAt).Seconds())
	c.SetSameSite(h.cookies.SameSiteMode())
	c.SetCookie(refreshCookieName, session.RefreshToken, maxAge, h.cookies.Path, h.cookies.Domain, h.cookies.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(h.cookies.SameSiteMode())
	c.SetCookie(refreshCookieName, "", -1, h.cookies.Path, h.cookies.Domain, h.cookies.Secure, true)
}

// refreshTokenFrom reads the token from the request body, falling back
// to the cookie so browser clients can refresh with an empty body.
func (h *AuthHandler) refreshTokenFrom(c *gin.Context, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}
	token, err := c.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return token
}

// Login authenticates a user by tenant code, username and password.
// Accounts with a second factor enabled receive a challenge token
// instead of a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	// The tenant code is resolved here so the core never sees it. A
	// missing tenant answers like a bad password to avoid probing.
	tenant, err := h.tenantRepo.FindByCode(c.Request.Context(), req.TenantCode)
	if err != nil {
		h.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), appidentity.LoginInput{
		TenantID:  tenant.ID,
		Username:  req.Username,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setRefreshCookie(c, result.Session)
	h.Success(c, toLoginResponse(result))
}

// VerifyTwoFactor completes a login that required a second factor
func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	var req TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	result, err := h.authService.VerifyTwoFactor(c.Request.Context(), appidentity.TwoFactorVerifyInput{
		ChallengeToken: req.ChallengeToken,
		Code:           req.Code,
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setRefreshCookie(c, result.Session)
	h.Success(c, toLoginResponse(result))
}

// Refresh rotates a refresh token into a fresh session
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.HandleBindingError(c, err)
			return
		}
	}

	token := h.refreshTokenFrom(c, req.RefreshToken)
	if token == "" {
		h.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Refresh token is required")
		return
	}

	session, err := h.authService.Refresh(c.Request.Context(), appidentity.RefreshInput{
		RefreshToken: token,
		IP:           c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.setRefreshCookie(c, session)
	h.Success(c, RefreshTokenResponse{Token: *toTokenResponse(session)})
}

// Logout revokes the presented refresh token and blacklists the
// current access token for its remaining lifetime
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.HandleBindingError(c, err)
			return
		}
	}

	token := h.refreshTokenFrom(c, req.RefreshToken)
	if token == "" {
		h.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Refresh token is required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), appidentity.LogoutInput{
		RefreshToken: token,
	}); err != nil {
		h.HandleError(c, err)
		return
	}
	h.clearRefreshCookie(c)

	if claims := middleware.GetJWTClaims(c); claims != nil && h.blacklist != nil {
		if ttl := claims.GetRemainingTTL(); ttl > 0 {
			// Best effort: losing the blacklist write only shortens
			// the revocation to the token's natural expiry
			_ = h.blacklist.RevokeToken(c.Request.Context(), claims.ID, ttl)
		}
	}

	h.Success(c, LogoutResponse{Message: "Logged out"})
}

// LogoutAll revokes every refresh token of the caller and invalidates
// all previously issued access tokens
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	if err := h.authService.LogoutAll(c.Request.Context(), scope.TenantID, scope.UserID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.clearRefreshCookie(c)

	if claims := middleware.GetJWTClaims(c); claims != nil && h.blacklist != nil {
		_ = h.blacklist.RevokeUserTokens(c.Request.Context(), claims.UserID, claims.GetRemainingTTL())
	}

	h.Success(c, LogoutResponse{Message: "All sessions terminated"})
}

// ChangePassword changes the caller's password. All other sessions are
// terminated by the application layer.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), appidentity.ChangePasswordInput{
		TenantID:    scope.TenantID,
		UserID:      scope.UserID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	}); err != nil {
		h.HandleError(c, err)
		return
	}

	if claims := middleware.GetJWTClaims(c); claims != nil && h.blacklist != nil {
		_ = h.blacklist.RevokeUserTokens(c.Request.Context(), claims.UserID, claims.GetRemainingTTL())
	}

	h.Success(c, LogoutResponse{Message: "Password changed"})
}

// EnableTwoFactor enrolls the caller into TOTP and returns the secret
// and backup codes for one-time display
func (h *AuthHandler) EnableTwoFactor(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req TwoFactorToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	enrollment, err := h.authService.EnableTwoFactor(c.Request.Context(), scope.TenantID, scope.UserID, req.Password)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, TwoFactorEnrollmentResponse{
		Secret:      enrollment.Secret,
		OTPAuthURL:  enrollment.OTPAuthURL,
		BackupCodes: enrollment.BackupCodes,
	})
}

// DisableTwoFactor removes the caller's second factor
func (h *AuthHandler) DisableTwoFactor(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req TwoFactorToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	if err := h.authService.DisableTwoFactor(c.Request.Context(), scope.TenantID, scope.UserID, req.Password); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, LogoutResponse{Message: "Two-factor disabled"})
}

// Me returns the authenticated user's profile and capabilities
func (h *AuthHandler) Me(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	info, err := h.authService.GetCurrentUser(c.Request.Context(), scope.TenantID, scope.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toAuthUserResponse(*info))
}
