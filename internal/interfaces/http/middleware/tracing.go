package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Bounds on header-sourced span attributes. Headers are attacker-controlled,
// so anything copied into a span gets a length cap.
const (
	MaxRequestIDLength = 128
	MaxTenantIDLength  = 64
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig configures the request tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "kambio-backend",
		Enabled:     true,
	}
}

// Tracing returns the tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin and enriches the server span with
// request_id, tenant_id and user_id once they are known. Spans are named
// "METHOD route_pattern" by otelgin.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passthrough
	}

	base := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
	}
}

// TracingAttributeInjector re-applies the identity attributes after the auth
// middleware has populated the gin context. Place it after both Tracing and
// the JWT middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := getRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if tenantID := getTenantID(c); tenantID != "" {
		span.SetAttributes(attribute.String("tenant_id", tenantID))
	}
	if userID := getUserID(c); userID != "" {
		span.SetAttributes(attribute.String("user_id", userID))
	}
}

// getRequestID prefers the id set by the RequestID middleware and falls back
// to the X-Request-ID header, truncated to the cap.
func getRequestID(c *gin.Context) string {
	if id := ginContextString(c, "request_id"); id != "" {
		return id
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// getTenantID prefers the authenticated claim and falls back to the
// X-Tenant-ID header. The header value must be a UUID, otherwise it does not
// reach the trace.
func getTenantID(c *gin.Context) string {
	if id := ginContextString(c, JWTTenantIDKey); id != "" {
		return id
	}

	headerID := c.GetHeader("X-Tenant-ID")
	if headerID != "" && isValidTenantID(headerID) {
		return headerID
	}
	return ""
}

func getUserID(c *gin.Context) string {
	return ginContextString(c, JWTUserIDKey)
}

func ginContextString(c *gin.Context, key string) string {
	if v, exists := c.Get(key); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func isValidTenantID(tenantID string) bool {
	if len(tenantID) > MaxTenantIDLength {
		return false
	}
	return uuidRegex.MatchString(tenantID)
}

// SpanErrorMarker marks the server span as errored on 4xx and 5xx responses.
// Place it after the Tracing middleware.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		span.SetStatus(codes.Error, statusErrorMessage(statusCode))
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}

func statusErrorMessage(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "Internal Server Error"
	case statusCode == http.StatusUnauthorized:
		return "Unauthorized"
	case statusCode == http.StatusForbidden:
		return "Forbidden"
	case statusCode == http.StatusNotFound:
		return "Not Found"
	default:
		return "Client Error"
	}
}
