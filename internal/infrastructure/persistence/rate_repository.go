package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/shared"
)

// GormRateRepository implements exchange.RateRepository using GORM
type GormRateRepository struct {
	db *gorm.DB
}

// NewGormRateRepository creates a new GormRateRepository
func NewGormRateRepository(db *gorm.DB) *GormRateRepository {
	return &GormRateRepository{db: db}
}

// Create publishes a new rate
func (r *GormRateRepository) Create(ctx context.Context, rate *exchange.ExchangeRate) error {
	return r.db.WithContext(ctx).Create(rate).Error
}

// Update updates a rate, typically to close its effective window
func (r *GormRateRepository) Update(ctx context.Context, rate *exchange.ExchangeRate) error {
	result := r.db.WithContext(ctx).
		Model(&exchange.ExchangeRate{}).
		Where("id = ? AND tenant_id = ?", rate.ID, rate.TenantID).
		Updates(map[string]interface{}{
			"buy_rate":     rate.BuyRate,
			"sell_rate":    rate.SellRate,
			"mid_rate":     rate.MidRate,
			"effective_to": rate.EffectiveTo,
			"version":      rate.Version,
			"updated_at":   rate.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindCurrent returns the latest effective rate for the pair
func (r *GormRateRepository) FindCurrent(ctx context.Context, tenantID uuid.UUID, from, to string) (*exchange.ExchangeRate, error) {
	return r.FindEffectiveAt(ctx, tenantID, from, to, time.Now())
}

// FindEffectiveAt returns the rate effective for the pair at the given instant
func (r *GormRateRepository) FindEffectiveAt(ctx context.Context, tenantID uuid.UUID, from, to string, at time.Time) (*exchange.ExchangeRate, error) {
	var rate exchange.ExchangeRate
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND from_currency = ? AND to_currency = ?", tenantID, from, to).
		Where("effective_from <= ?", at).
		Where("effective_to IS NULL OR effective_to > ?", at).
		Order("effective_from DESC").
		First(&rate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rate, nil
}

// FindHistory returns the published rates of a pair since the given time
func (r *GormRateRepository) FindHistory(ctx context.Context, tenantID uuid.UUID, from, to string, since time.Time) ([]*exchange.ExchangeRate, error) {
	var rates []*exchange.ExchangeRate
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND from_currency = ? AND to_currency = ?", tenantID, from, to).
		Where("effective_from >= ?", since).
		Order("effective_from DESC").
		Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

// FindAllCurrent returns the currently effective rate of every pair
// the tenant publishes
func (r *GormRateRepository) FindAllCurrent(ctx context.Context, tenantID uuid.UUID) ([]*exchange.ExchangeRate, error) {
	now := time.Now()
	var rates []*exchange.ExchangeRate
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("effective_from <= ?", now).
		Where("effective_to IS NULL OR effective_to > ?", now).
		Order("from_currency ASC, to_currency ASC, effective_from DESC").
		Find(&rates).Error; err != nil {
		return nil, err
	}

	// Keep only the newest rate per pair
	type pair struct{ from, to string }
	seen := make(map[pair]bool)
	current := make([]*exchange.ExchangeRate, 0, len(rates))
	for _, rate := range rates {
		key := pair{rate.FromCurrency, rate.ToCurrency}
		if seen[key] {
			continue
		}
		seen[key] = true
		current = append(current, rate)
	}
	return current, nil
}

var _ exchange.RateRepository = (*GormRateRepository)(nil)
