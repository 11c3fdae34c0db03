// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kambio/backend/internal/infrastructure/telemetry"
)

// HTTPMetricsConfig configures the HTTP metrics middleware.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	ServiceName   string
	Enabled       bool
}

func DefaultHTTPMetricsConfig() HTTPMetricsConfig {
	return HTTPMetricsConfig{
		ServiceName: "kambio-backend",
		Enabled:     true,
	}
}

type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	requestSize     *telemetry.Histogram
	responseSize    *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

var sizeBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	set := telemetry.NewInstrumentSet(meter)
	m := &httpMetrics{
		requestTotal: set.Counter("http_server_request_total", "Total number of HTTP requests", "{request}"),
		requestDuration: set.Histogram(telemetry.HistogramOpts{
			Name:        "http_server_request_duration_seconds",
			Description: "HTTP request latency distribution in seconds",
			Unit:        "s",
			Boundaries:  telemetry.HTTPDurationBuckets,
		}),
		requestSize: set.Histogram(telemetry.HistogramOpts{
			Name:        "http_server_request_size_bytes",
			Description: "HTTP request body size distribution in bytes",
			Unit:        "By",
			Boundaries:  sizeBuckets,
		}),
		responseSize: set.Histogram(telemetry.HistogramOpts{
			Name:        "http_server_response_size_bytes",
			Description: "HTTP response body size distribution in bytes",
			Unit:        "By",
			Boundaries:  sizeBuckets,
		}),
	}
	if err := set.Err(); err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	m.activeRequests = active
	return m, nil
}

// HTTPMetrics returns middleware that records request count, latency,
// body sizes and in-flight requests. When disabled or without a usable
// meter provider it degrades to a pass-through.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passthrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter builds the middleware on a caller-supplied meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passthrough
	}

	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		return passthrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		requestSize := getRequestSize(c)

		metrics.activeRequests.Add(ctx, 1)
		c.Next()
		metrics.activeRequests.Add(ctx, -1)

		recordHTTPMetrics(ctx, metrics,
			c.Request.Method,
			getRoutePattern(c),
			c.Writer.Status(),
			getTenantIDFromContext(c),
			time.Since(start),
			requestSize,
			c.Writer.Size(),
		)
	}
}

func passthrough(c *gin.Context) {
	c.Next()
}

func recordHTTPMetrics(
	ctx context.Context,
	metrics *httpMetrics,
	method, route string,
	statusCode int,
	tenantID string,
	duration time.Duration,
	requestSize int64,
	responseSize int,
) {
	requestAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
		telemetry.AttrHTTPStatusCode.Int(statusCode),
	}
	if tenantID != "" {
		requestAttrs = append(requestAttrs, telemetry.AttrTenantID.String(tenantID))
	}
	metrics.requestTotal.Inc(ctx, requestAttrs...)

	// Histograms carry only method and route to keep cardinality down.
	baseAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
	}
	metrics.requestDuration.RecordDuration(ctx, duration, baseAttrs...)

	if requestSize > 0 {
		metrics.requestSize.Record(ctx, float64(requestSize), baseAttrs...)
	}
	if responseSize > 0 {
		metrics.responseSize.Record(ctx, float64(responseSize), baseAttrs...)
	}
}

// getRoutePattern returns gin's matched route template rather than the raw
// path, so path parameters do not explode the label space.
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

func getRequestSize(c *gin.Context) int64 {
	if cl := c.Request.ContentLength; cl > 0 {
		return cl
	}
	return 0
}

// getTenantIDFromContext reads the tenant id the auth middleware stashed in
// the gin context, if any. Unlike getTenantID it never consults headers, so
// metric labels only carry authenticated tenants.
func getTenantIDFromContext(c *gin.Context) string {
	return ginContextString(c, JWTTenantIDKey)
}

