package event

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/shared"
)

// IdempotencyMetrics counts handler outcomes
type IdempotencyMetrics struct {
	Processed atomic.Int64
	Duplicate atomic.Int64
	Failed    atomic.Int64
}

// IdempotencyStats is a snapshot of the counters
type IdempotencyStats struct {
	Processed int64 `json:"processed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// Stats returns a snapshot of the current counters
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed: m.Processed.Load(),
		Duplicate: m.Duplicate.Load(),
		Failed:    m.Failed.Load(),
	}
}

// IdempotentHandler wraps an EventHandler so a redelivered event is
// handled at most once. The event ID is the idempotency key.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the default configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics shares a metrics instance across handlers
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler wraps the handler with dedup via the store
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's subscriptions
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle processes the event unless its ID was already seen. A store
// failure processes anyway; a possible duplicate beats a dropped event.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	eventID := event.EventID().String()

	isNew, err := h.store.MarkProcessed(ctx, eventID, h.config.TTL)
	if err != nil {
		h.logger.Warn("idempotency check failed, processing anyway",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	} else if !isNew {
		h.metrics.Duplicate.Add(1)
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.metrics.Failed.Add(1)
		// the key stays marked until TTL, so a failed event retries
		// after a cooldown instead of immediately
		return err
	}

	h.metrics.Processed.Add(1)
	return nil
}

// Metrics returns this handler's counters
func (h *IdempotentHandler) Metrics() *IdempotencyMetrics {
	return h.metrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
