package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appexchange "github.com/kambio/backend/internal/application/exchange"
	"github.com/kambio/backend/internal/domain/exchange"
)

// RedisRateCache caches published rates in Redis so every instance
// quotes from the same snapshot. Cache misses and Redis errors both
// fall through to the repository; the cache is never authoritative.
type RedisRateCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisRateCache creates a rate cache on an existing Redis client
func NewRedisRateCache(client *redis.Client, logger *zap.Logger) *RedisRateCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRateCache{
		client:    client,
		keyPrefix: "rates:current:",
		logger:    logger,
	}
}

// Get returns the cached rate for the key if present
func (c *RedisRateCache) Get(ctx context.Context, key string) (*exchange.ExchangeRate, bool) {
	payload, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Rate cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var rate exchange.ExchangeRate
	if err := json.Unmarshal(payload, &rate); err != nil {
		c.logger.Warn("Rate cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, c.keyPrefix+key)
		return nil, false
	}
	return &rate, true
}

// Set caches the rate under the key for the TTL
func (c *RedisRateCache) Set(ctx context.Context, key string, rate *exchange.ExchangeRate, ttl time.Duration) {
	if rate == nil || ttl <= 0 {
		return
	}
	payload, err := json.Marshal(rate)
	if err != nil {
		c.logger.Warn("Rate cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, payload, ttl).Err(); err != nil {
		c.logger.Warn("Rate cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete drops the cached rate for the key
func (c *RedisRateCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		c.logger.Warn("Rate cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

var _ appexchange.RateCache = (*RedisRateCache)(nil)
