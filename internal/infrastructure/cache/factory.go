package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appexchange "github.com/kambio/backend/internal/application/exchange"
	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/infrastructure/auth"
	"github.com/kambio/backend/internal/infrastructure/config"
)

// Factory creates the idempotency store and rate cache based on
// configuration, preferring Redis and optionally falling back to
// in-memory implementations when Redis is unreachable.
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	client                *redis.Client
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory
// implementations when Redis is unavailable. Default is true
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new cache factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// connect returns a shared Redis client, dialing on first use
func (f *Factory) connect() (*redis.Client, error) {
	if f.client != nil {
		return f.client, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", f.redisConfig.Host, f.redisConfig.Port),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	f.client = client
	return client, nil
}

// NewIdempotencyStore creates an idempotency store. Redis when
// reachable, otherwise in-memory if fallback is allowed
func (f *Factory) NewIdempotencyStore() (shared.IdempotencyStore, error) {
	client, err := f.connect()
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, err
		}
		f.logger.Warn("Redis unavailable, using in-memory idempotency store",
			zap.Error(err))
		return NewInMemoryIdempotencyStore(), nil
	}

	f.logger.Info("Using Redis idempotency store",
		zap.String("host", f.redisConfig.Host),
		zap.Int("port", f.redisConfig.Port))
	return NewRedisIdempotencyStoreWithClient(client, ""), nil
}

// NewRateCache creates a rate cache. Redis when reachable, otherwise
// in-memory if fallback is allowed
func (f *Factory) NewRateCache() (appexchange.RateCache, error) {
	client, err := f.connect()
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, err
		}
		f.logger.Warn("Redis unavailable, using in-memory rate cache",
			zap.Error(err))
		return NewMemoryRateCache(), nil
	}

	f.logger.Info("Using Redis rate cache",
		zap.String("host", f.redisConfig.Host),
		zap.Int("port", f.redisConfig.Port))
	return NewRedisRateCache(client, f.logger), nil
}

// NewTokenBlacklist creates a token blacklist. Redis when reachable,
// otherwise in-memory if fallback is allowed. The in-memory fallback
// loses revocations on restart, which only shortens the window in
// which a logged-out token is rejected early.
func (f *Factory) NewTokenBlacklist() (auth.TokenBlacklist, error) {
	client, err := f.connect()
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, err
		}
		f.logger.Warn("Redis unavailable, using in-memory token blacklist",
			zap.Error(err))
		return auth.NewInMemoryTokenBlacklist(), nil
	}

	f.logger.Info("Using Redis token blacklist",
		zap.String("host", f.redisConfig.Host),
		zap.Int("port", f.redisConfig.Port))
	return auth.NewRedisTokenBlacklist(client), nil
}

// Close releases the shared Redis client, if one was dialed
func (f *Factory) Close() error {
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
