package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kambio/backend/internal/domain/shared"
)

const defaultIdempotencyPrefix = "idempotency:"

// RedisIdempotencyStore shares idempotency state across instances
// through Redis. MarkProcessed relies on SETNX, so concurrent markers
// on different instances still resolve to a single winner.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStoreWithClient builds a store on an existing
// client, typically the factory's shared one. An empty keyPrefix
// selects the default.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed records a key for ttl. It reports true when this call
// created the key and false when another caller got there first.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark key as processed: %w", err)
	}
	return created, nil
}

// IsProcessed reports whether key is recorded and not yet expired.
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check processed key: %w", err)
	}
	return n > 0, nil
}

// Close releases the Redis client.
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
