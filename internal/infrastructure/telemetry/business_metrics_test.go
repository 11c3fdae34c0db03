package telemetry_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/infrastructure/telemetry"
)

func newTestBusinessMetrics(t *testing.T) *telemetry.BusinessMetrics {
	t.Helper()

	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:     false,
		ServiceName: "test-service",
	}, logger)
	require.NoError(t, err)

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  mp.Meter("test"),
		Logger: logger,
	})
	require.NoError(t, err)
	return bm
}

func TestNewBusinessMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestBusinessMetrics_EventTypes(t *testing.T) {
	bm := newTestBusinessMetrics(t)

	types := bm.EventTypes()
	assert.Contains(t, types, exchange.TransactionCreatedEventType)
	assert.Contains(t, types, exchange.TransactionStatusChangedEventType)
	assert.Contains(t, types, exchange.RatePublishedEventType)
}

func TestBusinessMetrics_HandleTransactionCreated(t *testing.T) {
	bm := newTestBusinessMetrics(t)
	ctx := context.Background()

	evt := &exchange.TransactionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			exchange.TransactionCreatedEventType,
			exchange.TransactionAggregateType,
			uuid.New(), uuid.New(),
		),
		Reference:    "TXN-2026-000042",
		Type:         exchange.TxnTypeExchange,
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Amount:       decimal.RequireFromString("125.50"),
	}

	err := bm.Handle(ctx, evt)
	assert.NoError(t, err)
}

func TestBusinessMetrics_HandleStatusChanged(t *testing.T) {
	bm := newTestBusinessMetrics(t)
	ctx := context.Background()

	evt := &exchange.TransactionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			exchange.TransactionStatusChangedEventType,
			exchange.TransactionAggregateType,
			uuid.New(), uuid.New(),
		),
		Reference: "TXN-2026-000042",
		From:      exchange.TxnStatusProcessing,
		To:        exchange.TxnStatusCompleted,
	}

	err := bm.Handle(ctx, evt)
	assert.NoError(t, err)
}

func TestBusinessMetrics_HandleRatePublished(t *testing.T) {
	bm := newTestBusinessMetrics(t)
	ctx := context.Background()

	evt := &exchange.RatePublishedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			exchange.RatePublishedEventType,
			exchange.RateAggregateType,
			uuid.New(), uuid.New(),
		),
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		BuyRate:      decimal.RequireFromString("0.91"),
		SellRate:     decimal.RequireFromString("0.93"),
	}

	err := bm.Handle(ctx, evt)
	assert.NoError(t, err)
}

func TestBusinessMetrics_HandleUnknownEventIgnored(t *testing.T) {
	bm := newTestBusinessMetrics(t)
	ctx := context.Background()

	evt := shared.NewBaseDomainEvent("account.frozen", "LedgerAccount", uuid.New(), uuid.New())

	err := bm.Handle(ctx, &evt)
	assert.NoError(t, err)
}
