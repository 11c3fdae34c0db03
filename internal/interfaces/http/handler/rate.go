package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	appexchange "github.com/kambio/backend/internal/application/exchange"
	"github.com/kambio/backend/internal/domain/exchange"
)

// RateHandler handles exchange-rate endpoints
type RateHandler struct {
	BaseHandler
	rateService *appexchange.RateService
}

// NewRateHandler creates a new RateHandler
func NewRateHandler(rateService *appexchange.RateService) *RateHandler {
	return &RateHandler{rateService: rateService}
}

// Publish publishes a new rate for a currency pair, superseding the
// previous one
func (h *RateHandler) Publish(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req PublishRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	source := exchange.RateSourceManual
	if req.Source != "" {
		source = exchange.RateSource(req.Source)
	}
	effectiveFrom := time.Now()
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}

	rate, err := h.rateService.Publish(c.Request.Context(), scope, appexchange.PublishRateInput{
		FromCurrency:  req.FromCurrency,
		ToCurrency:    req.ToCurrency,
		BuyRate:       req.BuyRate,
		SellRate:      req.SellRate,
		Source:        source,
		EffectiveFrom: effectiveFrom,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toRateResponse(rate))
}

// Quote returns the applicable rate for a pair without creating a
// transaction
func (h *RateHandler) Quote(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	direction := exchange.DirectionBuy
	if req.Direction != "" {
		direction = exchange.RateDirection(req.Direction)
	}

	published, rate, err := h.rateService.Quote(c.Request.Context(), scope, req.From, req.To, direction)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, QuoteResponse{
		FromCurrency: req.From,
		ToCurrency:   req.To,
		Direction:    string(direction),
		Rate:         rate,
		PublishedAt:  published.EffectiveFrom,
	})
}

// ListCurrent returns the currently effective rate per pair
func (h *RateHandler) ListCurrent(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	rates, err := h.rateService.ListCurrent(c.Request.Context(), scope)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRateResponses(rates))
}

// History returns published rates for a pair since a moment. Defaults
// to the last 30 days.
func (h *RateHandler) History(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		return
	}

	from := c.Query("from")
	to := c.Query("to")
	if len(from) != 3 || len(to) != 3 {
		h.BadRequest(c, "from and to currency codes are required")
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	rates, err := h.rateService.History(c.Request.Context(), scope, from, to, since)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRateResponses(rates))
}
