package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/infrastructure/auth"
	"github.com/kambio/backend/internal/infrastructure/logger"
	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTUserIDKey   = "jwt_user_id"
	JWTTenantIDKey = "jwt_tenant_id"
	JWTUsernameKey = "jwt_username"
	JWTRoleKey     = "jwt_role"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// JWTService is required for token validation
	JWTService *auth.JWTService
	// TokenBlacklist is optional for checking revoked tokens
	TokenBlacklist auth.TokenBlacklist
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't require authentication
	SkipPathPrefixes []string
	// Optional callback if token is invalid (default: return 401)
	OnError func(c *gin.Context, err error)
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultJWTConfig returns default JWT middleware configuration
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/metrics",
			"/api/v1/health",
			"/api/v1/auth/login",
			"/api/v1/auth/2fa/verify",
			"/api/v1/auth/refresh",
		},
	}
}

// JWTAuthMiddleware creates JWT authentication middleware
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig creates JWT authentication middleware with
// custom config. On success the validated claims are stored in the gin
// context and an authenticated scope is attached to the request context
// for the application layer.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authSkipped(cfg, c.Request.URL.Path) {
			c.Next()
			return
		}

		tokenString, errMsg := bearerToken(c)
		if errMsg != "" {
			handleAuthError(c, cfg, auth.ErrInvalidToken, errMsg)
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			handleAuthError(c, cfg, err, "Token validation failed")
			return
		}

		tenantID, err := claims.GetTenantUUID()
		if err != nil {
			handleAuthError(c, cfg, auth.ErrInvalidClaims, "Malformed tenant claim")
			return
		}
		userID, err := claims.GetUserUUID()
		if err != nil {
			handleAuthError(c, cfg, auth.ErrInvalidClaims, "Malformed user claim")
			return
		}

		if cfg.TokenBlacklist != nil {
			ctx := c.Request.Context()

			// Per-token revocation (logout)
			if jti := claims.ID; jti != "" {
				revoked, err := cfg.TokenBlacklist.IsTokenRevoked(ctx, jti)
				if err != nil {
					// Fail open: a store outage must not lock everyone out
					if cfg.Logger != nil {
						cfg.Logger.Error("Failed to check token revocation",
							zap.String("jti", jti),
							zap.Error(err))
					}
				} else if revoked {
					handleAuthError(c, cfg, auth.ErrTokenBlacklisted, "Token has been revoked")
					return
				}
			}

			// User-wide cutoff (logout-all, password change)
			revoked, err := cfg.TokenBlacklist.IsUserTokenRevoked(ctx, claims.UserID, claims.GetIssuedAtTime())
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Error("Failed to check user token cutoff",
						zap.String("user_id", claims.UserID),
						zap.Error(err))
				}
			} else if revoked {
				handleAuthError(c, cfg, auth.ErrTokenBlacklisted, "Session has been invalidated")
				return
			}
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTTenantIDKey, claims.TenantID)
		c.Set(JWTUsernameKey, claims.Username)
		c.Set(JWTRoleKey, claims.Role)

		// Attach the authenticated scope and enrich the request logger
		scope := tenantctx.NewScope(userID, tenantID, identity.UserRole(claims.Role))
		ctx := tenantctx.WithScope(c.Request.Context(), scope)
		log := logger.FromContext(ctx)
		ctx, log = logger.WithUserID(ctx, log, claims.UserID)
		ctx, _ = logger.WithTenantID(ctx, log, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func authSkipped(cfg JWTMiddlewareConfig, path string) bool {
	for _, skipPath := range cfg.SkipPaths {
		if path == skipPath {
			return true
		}
	}
	for _, prefix := range cfg.SkipPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from the Authorization header. A non-empty
// second return value describes why extraction failed.
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader(AuthHeaderKey)
	switch {
	case authHeader == "":
		return "", "Missing authorization header"
	case !strings.HasPrefix(authHeader, BearerPrefix):
		return "", "Invalid authorization header format"
	}

	token := strings.TrimPrefix(authHeader, BearerPrefix)
	if token == "" {
		return "", "Missing token"
	}
	return token, ""
}

// handleAuthError handles authentication errors
func handleAuthError(c *gin.Context, cfg JWTMiddlewareConfig, err error, message string) {
	if cfg.OnError != nil {
		cfg.OnError(c, err)
		return
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("message", message),
			zap.String("path", c.Request.URL.Path),
		)
	}

	code := dto.ErrCodeUnauthorized
	msg := "Authentication required"
	switch err {
	case auth.ErrExpiredToken:
		code = dto.ErrCodeTokenExpired
		msg = "Token has expired"
	case auth.ErrInvalidToken, auth.ErrInvalidClaims:
		code = dto.ErrCodeTokenInvalid
		msg = "Invalid token"
	case auth.ErrInvalidTokenType:
		code = dto.ErrCodeTokenInvalid
		msg = "Invalid token type"
	case auth.ErrTokenNotYetValid:
		code = dto.ErrCodeTokenInvalid
		msg = "Token is not yet valid"
	case auth.ErrTokenBlacklisted:
		code = dto.ErrCodeTokenRevoked
		msg = "Token has been revoked"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, msg))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID retrieves the user ID from JWT claims in context
func GetJWTUserID(c *gin.Context) string {
	return ginContextString(c, JWTUserIDKey)
}

// GetJWTTenantID retrieves the tenant ID from JWT claims in context
func GetJWTTenantID(c *gin.Context) string {
	return ginContextString(c, JWTTenantIDKey)
}
