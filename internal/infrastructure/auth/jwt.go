package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kambio/backend/internal/infrastructure/config"
)

// TokenType distinguishes the JWTs this service signs. Refresh tokens
// are not JWTs; they are opaque values persisted hashed server-side.
type TokenType string

const (
	// TokenTypeAccess is a full session token.
	TokenTypeAccess TokenType = "access"
	// TokenTypeChallenge is the short-lived token handed out after a
	// correct password when the account still owes a second factor.
	// It is only accepted by the two-factor verification step.
	TokenTypeChallenge TokenType = "twofactor"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrTokenBlacklisted = errors.New("token has been revoked")
)

// Claims represents custom JWT claims
type Claims struct {
	jwt.RegisteredClaims
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// JWTService signs and validates the JWTs used for API access
type JWTService struct {
	secret           []byte
	accessExpiration time.Duration
	challengeTTL     time.Duration
	issuer           string
	parser           *jwt.Parser
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:           []byte(cfg.Secret),
		accessExpiration: cfg.AccessTokenExpiration,
		challengeTTL:     cfg.ChallengeExpiration,
		issuer:           cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// TokenInput identifies the principal a token is minted for
type TokenInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Username string
	Role     string
}

// GenerateAccessToken mints a signed access token and returns it with
// its expiry time.
func (s *JWTService) GenerateAccessToken(input TokenInput) (string, time.Time, error) {
	return s.generate(input, TokenTypeAccess, s.accessExpiration)
}

// GenerateChallengeToken mints the intermediate token for the
// two-factor step.
func (s *JWTService) GenerateChallengeToken(input TokenInput) (string, time.Time, error) {
	return s.generate(input, TokenTypeChallenge, s.challengeTTL)
}

func (s *JWTService) generate(input TokenInput, tokenType TokenType, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:  input.TenantID.String(),
		UserID:    input.UserID.String(),
		Username:  input.Username,
		Role:      input.Role,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, TokenTypeAccess)
}

// ValidateChallengeToken validates a two-factor challenge token
func (s *JWTService) ValidateChallengeToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, TokenTypeChallenge)
}

func (s *JWTService) validateToken(tokenString string, expectedType TokenType) (*Claims, error) {
	token, err := s.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, ErrTokenNotYetValid
	case err != nil:
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	switch {
	case !ok || !token.Valid:
		return nil, ErrInvalidClaims
	case claims.TokenType != expectedType:
		return nil, ErrInvalidTokenType
	case claims.TenantID == "":
		return nil, ErrMissingTenantID
	case claims.UserID == "":
		return nil, ErrMissingUserID
	}

	return claims, nil
}

// GetTenantUUID extracts and parses the tenant ID from claims
func (c *Claims) GetTenantUUID() (uuid.UUID, error) {
	return uuid.Parse(c.TenantID)
}

// GetUserUUID extracts and parses the user ID from claims
func (c *Claims) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

// GetIssuedAtTime returns the token's issued-at time as time.Time
func (c *Claims) GetIssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// GetExpiresAtTime returns the token's expiration time as time.Time
func (c *Claims) GetExpiresAtTime() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// GetRemainingTTL returns the remaining time until the token expires
func (c *Claims) GetRemainingTTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(c.ExpiresAt.Time)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetAccessTokenExpiration returns the access token expiration duration
func (s *JWTService) GetAccessTokenExpiration() time.Duration {
	return s.accessExpiration
}
