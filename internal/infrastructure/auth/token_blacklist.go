package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist revokes access tokens before their natural expiry.
// Access tokens are stateless JWTs, so logout and forced sign-out need
// a shared veto list keyed by JTI, plus a per-user cutoff for revoking
// every outstanding token at once (password change, logout-all).
type TokenBlacklist interface {
	// RevokeToken marks a single token, by its JTI, as revoked. The TTL
	// should be the token's remaining lifetime; entries past the token's
	// own expiry are useless.
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error

	// IsTokenRevoked reports whether the JTI has been revoked.
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeUserTokens records a cutoff for the user. Tokens issued at
	// or before the cutoff are rejected. TTL should cover the access
	// token lifetime.
	RevokeUserTokens(ctx context.Context, userID string, ttl time.Duration) error

	// IsUserTokenRevoked reports whether a token issued at the given
	// time falls under the user's revocation cutoff.
	IsUserTokenRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

const blacklistKeyPrefix = "token:blacklist:"

// RedisTokenBlacklist is the production TokenBlacklist. It shares the
// application's redis client rather than dialing its own.
type RedisTokenBlacklist struct {
	client *redis.Client
}

// NewRedisTokenBlacklist wraps an existing redis client.
func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client}
}

func (b *RedisTokenBlacklist) jtiKey(jti string) string {
	return blacklistKeyPrefix + "jti:" + jti
}

func (b *RedisTokenBlacklist) userKey(userID string) string {
	return blacklistKeyPrefix + "user:" + userID
}

func (b *RedisTokenBlacklist) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, b.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}

func (b *RedisTokenBlacklist) RevokeUserTokens(ctx context.Context, userID string, ttl time.Duration) error {
	cutoff := time.Now().Unix()
	if err := b.client.Set(ctx, b.userKey(userID), cutoff, ttl).Err(); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsUserTokenRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := b.client.Get(ctx, b.userKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user token revocation: %w", err)
	}

	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse revocation cutoff: %w", err)
	}
	return issuedAt.Unix() <= cutoff, nil
}

var _ TokenBlacklist = (*RedisTokenBlacklist)(nil)

// InMemoryTokenBlacklist keeps revocations in process memory. It is for
// tests and single-instance development; separate instances would not
// see each other's revocations.
type InMemoryTokenBlacklist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> entry expiry
	cutoffs map[string]time.Time // userID -> revocation cutoff
}

func NewInMemoryTokenBlacklist() *InMemoryTokenBlacklist {
	return &InMemoryTokenBlacklist{
		revoked: make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
	}
}

func (b *InMemoryTokenBlacklist) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = time.Now().Add(ttl)
	return nil
}

func (b *InMemoryTokenBlacklist) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiry, ok := b.revoked[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(b.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (b *InMemoryTokenBlacklist) RevokeUserTokens(_ context.Context, userID string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cutoffs[userID] = time.Now()
	return nil
}

func (b *InMemoryTokenBlacklist) IsUserTokenRevoked(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff, ok := b.cutoffs[userID]
	if !ok {
		return false, nil
	}
	// Nanosecond comparison so tokens minted immediately after the
	// cutoff in the same second survive.
	return issuedAt.UnixNano() <= cutoff.UnixNano(), nil
}

var _ TokenBlacklist = (*InMemoryTokenBlacklist)(nil)
