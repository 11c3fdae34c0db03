// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/shared"
)

// BusinessMetrics tracks transaction throughput, status transitions, and
// rate publications. It is fed from the domain event bus: register it as a
// subscriber and every persisted transaction transition shows up as a counter.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	txnCreatedTotal     *Counter
	txnAmountCentsTotal *Counter
	txnStatusTotal      *Counter
	ratesPublishedTotal *Counter
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	set := NewInstrumentSet(cfg.Meter)
	bm := &BusinessMetrics{
		meter:               cfg.Meter,
		logger:              logger,
		txnCreatedTotal:     set.Counter("exchange_transaction_created_total", "Total number of transactions initiated", "{transactions}"),
		txnAmountCentsTotal: set.Counter("exchange_transaction_amount_cents_total", "Total transacted source amount in minor units", "{cents}"),
		txnStatusTotal:      set.Counter("exchange_transaction_status_total", "Total number of transaction status transitions", "{transitions}"),
		ratesPublishedTotal: set.Counter("exchange_rate_published_total", "Total number of exchange rates published", "{rates}"),
	}
	if err := set.Err(); err != nil {
		return nil, err
	}
	return bm, nil
}

// RecordTransactionCreated records a transaction creation with its source amount.
// The amount is converted to minor units for the monotonic sum.
func (bm *BusinessMetrics) RecordTransactionCreated(ctx context.Context, evt *exchange.TransactionCreatedEvent) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(evt.TenantID().String()),
		AttrTransactionType.String(string(evt.Type)),
		AttrCurrencyPair.String(evt.FromCurrency + "/" + evt.ToCurrency),
	}
	bm.txnCreatedTotal.Inc(ctx, attrs...)

	amountCents := evt.Amount.Mul(decimal.NewFromInt(100)).IntPart()
	bm.txnAmountCentsTotal.Add(ctx, amountCents, attrs...)
}

// RecordStatusChange records a transaction state transition.
func (bm *BusinessMetrics) RecordStatusChange(ctx context.Context, evt *exchange.TransactionStatusChangedEvent) {
	bm.txnStatusTotal.Inc(ctx,
		AttrTenantID.String(evt.TenantID().String()),
		AttrStatusFrom.String(string(evt.From)),
		AttrStatusTo.String(string(evt.To)),
	)
}

// RecordRatePublished records a rate publication.
func (bm *BusinessMetrics) RecordRatePublished(ctx context.Context, evt *exchange.RatePublishedEvent) {
	bm.ratesPublishedTotal.Inc(ctx,
		AttrTenantID.String(evt.TenantID().String()),
		AttrCurrencyPair.String(evt.FromCurrency+"/"+evt.ToCurrency),
	)
}

// Handle implements shared.EventHandler so BusinessMetrics can be subscribed
// directly to the event bus. Events with no metric mapping are ignored.
func (bm *BusinessMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch evt := event.(type) {
	case *exchange.TransactionCreatedEvent:
		bm.RecordTransactionCreated(ctx, evt)
	case *exchange.TransactionStatusChangedEvent:
		bm.RecordStatusChange(ctx, evt)
	case *exchange.RatePublishedEvent:
		bm.RecordRatePublished(ctx, evt)
	default:
		bm.logger.Debug("Ignoring event with no metric mapping",
			zap.String("event_type", event.EventType()),
		)
	}
	return nil
}

// EventTypes implements shared.EventHandler.
func (bm *BusinessMetrics) EventTypes() []string {
	return []string{
		exchange.TransactionCreatedEventType,
		exchange.TransactionStatusChangedEventType,
		exchange.RatePublishedEventType,
	}
}

var _ shared.EventHandler = (*BusinessMetrics)(nil)

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
