package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/domain/shared/valueobject"
)

// RateSource tells where a rate came from
type RateSource string

const (
	RateSourceManual   RateSource = "manual"
	RateSourceProvider RateSource = "provider"
)

// RateDirection selects which side of the spread applies. Buy means the
// desk buys the base currency from the customer, sell means the desk
// sells it.
type RateDirection string

const (
	DirectionBuy  RateDirection = "buy"
	DirectionSell RateDirection = "sell"
)

// ExchangeRate is a published quote for one currency pair. Rates are
// append-only; a new publication supersedes the previous one for the
// pair rather than mutating it.
type ExchangeRate struct {
	shared.TenantAggregateRoot
	FromCurrency  string          `gorm:"type:varchar(10);not null;index:idx_rate_pair"`
	ToCurrency    string          `gorm:"type:varchar(10);not null;index:idx_rate_pair"`
	BuyRate       decimal.Decimal `gorm:"not null"`
	SellRate      decimal.Decimal `gorm:"not null"`
	MidRate       decimal.Decimal `gorm:"not null"`
	Source        RateSource      `gorm:"type:varchar(20);not null"`
	EffectiveFrom time.Time       `gorm:"not null;index"`
	EffectiveTo   *time.Time
	PublishedBy   *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// NewExchangeRate publishes a rate for a currency pair.
func NewExchangeRate(tenantID uuid.UUID, from, to string, buy, sell decimal.Decimal, source RateSource, effectiveFrom time.Time) (*ExchangeRate, error) {
	if !valueobject.IsSupportedCurrency(from) || !valueobject.IsSupportedCurrency(to) {
		return nil, shared.NewDomainError("UNSUPPORTED_CURRENCY", "Rate currency is not supported")
	}
	if from == to {
		return nil, shared.NewDomainError("INVALID_PAIR", "Rate pair must span two currencies")
	}
	if !buy.IsPositive() || !sell.IsPositive() {
		return nil, shared.NewDomainError("INVALID_RATE", "Rates must be positive")
	}
	if buy.GreaterThan(sell) {
		return nil, shared.NewDomainError("INVALID_SPREAD", "Buy rate must not exceed sell rate")
	}
	if source != RateSourceManual && source != RateSourceProvider {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Invalid rate source")
	}

	rate := &ExchangeRate{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		FromCurrency:        from,
		ToCurrency:          to,
		BuyRate:             buy,
		SellRate:            sell,
		MidRate:             buy.Add(sell).Div(decimal.NewFromInt(2)),
		Source:              source,
		EffectiveFrom:       effectiveFrom,
	}

	rate.AddDomainEvent(NewRatePublishedEvent(rate))

	return rate, nil
}

// Pair returns the canonical pair key, e.g. "USD/EUR"
func (r *ExchangeRate) Pair() string {
	return fmt.Sprintf("%s/%s", r.FromCurrency, r.ToCurrency)
}

// RateFor returns the applicable rate for a direction
func (r *ExchangeRate) RateFor(direction RateDirection) (decimal.Decimal, error) {
	switch direction {
	case DirectionBuy:
		return r.BuyRate, nil
	case DirectionSell:
		return r.SellRate, nil
	default:
		return decimal.Zero, shared.NewDomainError("INVALID_DIRECTION", "Invalid rate direction")
	}
}

// Supersede closes the rate's validity window
func (r *ExchangeRate) Supersede(at time.Time) {
	if r.EffectiveTo == nil {
		r.EffectiveTo = &at
		r.UpdatedAt = time.Now()
		r.IncrementVersion()
	}
}

// IsEffectiveAt reports whether the rate's validity window covers t
func (r *ExchangeRate) IsEffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// CheckFreshness rejects a rate older than the staleness threshold.
// Pricing never proceeds on a stale quote.
func (r *ExchangeRate) CheckFreshness(now time.Time, maxAge time.Duration) error {
	if now.Sub(r.EffectiveFrom) > maxAge {
		return shared.NewDomainError("RATE_STALE", fmt.Sprintf("Rate for %s is older than %s", r.Pair(), maxAge))
	}
	return nil
}
