package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kambio/backend/internal/domain/exchange"
)

// PublishRateRequest represents a request to publish a rate for a pair
type PublishRateRequest struct {
	FromCurrency  string          `json:"from_currency" binding:"required,len=3"`
	ToCurrency    string          `json:"to_currency" binding:"required,len=3"`
	BuyRate       decimal.Decimal `json:"buy_rate" binding:"required"`
	SellRate      decimal.Decimal `json:"sell_rate" binding:"required"`
	Source        string          `json:"source" binding:"omitempty,oneof=manual provider"`
	EffectiveFrom *time.Time      `json:"effective_from"`
}

// QuoteRequest represents rate quote query parameters
type QuoteRequest struct {
	From      string `form:"from" binding:"required,len=3"`
	To        string `form:"to" binding:"required,len=3"`
	Direction string `form:"direction" binding:"omitempty,oneof=buy sell"`
}

// RateResponse represents a published rate in API responses
type RateResponse struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	FromCurrency  string          `json:"from_currency"`
	ToCurrency    string          `json:"to_currency"`
	BuyRate       decimal.Decimal `json:"buy_rate"`
	SellRate      decimal.Decimal `json:"sell_rate"`
	MidRate       decimal.Decimal `json:"mid_rate"`
	Source        string          `json:"source"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	PublishedBy   *uuid.UUID      `json:"published_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// QuoteResponse represents a priced quote
type QuoteResponse struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Direction    string          `json:"direction"`
	Rate         decimal.Decimal `json:"rate"`
	PublishedAt  time.Time       `json:"published_at"`
}

func toRateResponse(r *exchange.ExchangeRate) RateResponse {
	return RateResponse{
		ID:            r.ID,
		TenantID:      r.TenantID,
		FromCurrency:  r.FromCurrency,
		ToCurrency:    r.ToCurrency,
		BuyRate:       r.BuyRate,
		SellRate:      r.SellRate,
		MidRate:       r.MidRate,
		Source:        string(r.Source),
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		PublishedBy:   r.PublishedBy,
		CreatedAt:     r.CreatedAt,
	}
}

func toRateResponses(rates []*exchange.ExchangeRate) []RateResponse {
	out := make([]RateResponse, 0, len(rates))
	for _, r := range rates {
		out = append(out, toRateResponse(r))
	}
	return out
}
