package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/kambio/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func disabledConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "kambio-test",
	}
}

func TestTracerProviderDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := disabledConfig()

	tp, err := telemetry.NewTracerProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, tp)

	assert.False(t, tp.IsEnabled())

	got := tp.GetConfig()
	assert.Equal(t, cfg.ServiceName, got.ServiceName)
	assert.False(t, got.Enabled)

	t.Run("tracer still usable", func(t *testing.T) {
		tracer := tp.Tracer("test-tracer")
		require.NotNil(t, tracer)
		_, span := tracer.Start(ctx, "noop-span")
		span.End()
	})

	t.Run("flush and shutdown are no-ops", func(t *testing.T) {
		assert.NoError(t, tp.ForceFlush(ctx))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.NoError(t, tp.Shutdown(cancelled))
	})
}

func TestTracerProviderSamplingRatios(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	// Keep telemetry off so no collector is needed; the sampler is still built
	// from the ratio when enabled.
	for _, ratio := range []float64{1.0, 0.0, 0.5} {
		cfg := disabledConfig()
		cfg.SamplingRatio = ratio

		tp, err := telemetry.NewTracerProvider(ctx, cfg, logger)
		require.NoError(t, err)
		assert.False(t, tp.IsEnabled())
		assert.NoError(t, tp.Shutdown(ctx))
	}
}

func TestTracerProviderEnabled(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a running OTLP collector")
	}

	ctx := context.Background()
	cfg := disabledConfig()
	cfg.Enabled = true
	cfg.Insecure = true

	tp, err := telemetry.NewTracerProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())

	_, span := tp.Tracer("test").Start(ctx, "test-span")
	span.End()

	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestTracerProviderBadEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("requires network")
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.ErrorLevel))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := telemetry.Config{
		Enabled:           true,
		CollectorEndpoint: "invalid-host:99999",
		SamplingRatio:     1.0,
		ServiceName:       "kambio-test",
	}

	// The OTLP client connects lazily, so construction usually succeeds and
	// export failures surface later.
	tp, err := telemetry.NewTracerProvider(ctx, cfg, logger)
	if err != nil {
		t.Logf("connection refused at construction: %v", err)
		return
	}
	_ = tp.Shutdown(context.Background())
}
