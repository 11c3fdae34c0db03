package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	"github.com/kambio/backend/internal/application/tenantctx"
	"github.com/kambio/backend/internal/domain/audit"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/domain/shared"
)

// RateCache is a read-through cache for current rates. Stale cached
// reads are acceptable up to the rate's validity window.
type RateCache interface {
	Get(ctx context.Context, key string) (*exchange.ExchangeRate, bool)
	Set(ctx context.Context, key string, rate *exchange.ExchangeRate, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// RateServiceConfig tunes quoting
type RateServiceConfig struct {
	MaxAge   time.Duration
	CacheTTL time.Duration
}

// DefaultRateServiceConfig returns default configuration
func DefaultRateServiceConfig() RateServiceConfig {
	return RateServiceConfig{
		MaxAge:   15 * time.Minute,
		CacheTTL: 30 * time.Second,
	}
}

// RateService publishes and quotes exchange rates
type RateService struct {
	rateRepo exchange.RateRepository
	cache    RateCache
	config   RateServiceConfig
	recorder *appaudit.Recorder
	logger   *zap.Logger
}

// NewRateService creates a new rate service. cache may be nil.
func NewRateService(
	rateRepo exchange.RateRepository,
	cache RateCache,
	config RateServiceConfig,
	recorder *appaudit.Recorder,
	logger *zap.Logger,
) *RateService {
	return &RateService{
		rateRepo: rateRepo,
		cache:    cache,
		config:   config,
		recorder: recorder,
		logger:   logger,
	}
}

// Publish stores a new rate and closes the previous one's window
func (s *RateService) Publish(ctx context.Context, scope tenantctx.Scope, input PublishRateInput) (*exchange.ExchangeRate, error) {
	if err := scope.Require(identity.CapRateManage); err != nil {
		return nil, err
	}

	effectiveFrom := input.EffectiveFrom
	if effectiveFrom.IsZero() {
		effectiveFrom = time.Now()
	}

	rate, err := exchange.NewExchangeRate(scope.TenantID, input.FromCurrency, input.ToCurrency, input.BuyRate, input.SellRate, input.Source, effectiveFrom)
	if err != nil {
		return nil, err
	}
	rate.PublishedBy = &scope.UserID

	previous, err := s.rateRepo.FindCurrent(ctx, scope.TenantID, input.FromCurrency, input.ToCurrency)
	if err == nil && previous != nil {
		previous.Supersede(effectiveFrom)
		if err := s.rateRepo.Update(ctx, previous); err != nil {
			return nil, err
		}
	}

	if err := s.rateRepo.Create(ctx, rate); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Delete(ctx, s.cacheKey(scope, input.FromCurrency, input.ToCurrency))
	}

	s.recorder.Record(audit.Record(scope.TenantID, &scope.UserID, audit.ActionRatePublished).
		WithEntity("ExchangeRate", rate.ID).
		WithChange(nil, map[string]any{
			"pair": rate.Pair(),
			"buy":  rate.BuyRate.String(),
			"sell": rate.SellRate.String(),
		}))

	s.logger.Info("Rate published",
		zap.String("pair", rate.Pair()),
		zap.String("buy", rate.BuyRate.String()),
		zap.String("sell", rate.SellRate.String()))

	return rate, nil
}

// Quote returns the applicable rate for one direction. A quote past
// its validity window or older than MaxAge is refused as stale.
func (s *RateService) Quote(ctx context.Context, scope tenantctx.Scope, from, to string, direction exchange.RateDirection) (*exchange.ExchangeRate, decimal.Decimal, error) {
	if err := scope.Require(identity.CapRateView); err != nil {
		return nil, decimal.Zero, err
	}

	rate, err := s.currentRate(ctx, scope, from, to)
	if err != nil {
		return nil, decimal.Zero, err
	}

	now := time.Now()
	if !rate.IsEffectiveAt(now) {
		return nil, decimal.Zero, shared.NewDomainError("RATE_STALE", fmt.Sprintf("No effective rate for %s/%s", from, to))
	}
	if err := rate.CheckFreshness(now, s.config.MaxAge); err != nil {
		return nil, decimal.Zero, err
	}

	applied, err := rate.RateFor(direction)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return rate, applied, nil
}

// ListCurrent returns the board of current rates
func (s *RateService) ListCurrent(ctx context.Context, scope tenantctx.Scope) ([]*exchange.ExchangeRate, error) {
	if err := scope.Require(identity.CapRateView); err != nil {
		return nil, err
	}
	return s.rateRepo.FindAllCurrent(ctx, scope.TenantID)
}

// History returns publications for a pair since a point in time
func (s *RateService) History(ctx context.Context, scope tenantctx.Scope, from, to string, since time.Time) ([]*exchange.ExchangeRate, error) {
	if err := scope.Require(identity.CapRateView); err != nil {
		return nil, err
	}
	return s.rateRepo.FindHistory(ctx, scope.TenantID, from, to, since)
}

func (s *RateService) currentRate(ctx context.Context, scope tenantctx.Scope, from, to string) (*exchange.ExchangeRate, error) {
	key := s.cacheKey(scope, from, to)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	rate, err := s.rateRepo.FindCurrent(ctx, scope.TenantID, from, to)
	if err != nil {
		return nil, shared.NewDomainError("RATE_UNAVAILABLE", fmt.Sprintf("No rate published for %s/%s", from, to))
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, rate, s.config.CacheTTL)
	}
	return rate, nil
}

func (s *RateService) cacheKey(scope tenantctx.Scope, from, to string) string {
	return fmt.Sprintf("rate:%s:%s:%s", scope.TenantID, from, to)
}
