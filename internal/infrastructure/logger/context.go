package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	RequestIDKey contextKey = "request_id"
	TenantIDKey  contextKey = "tenant_id"
	UserIDKey    contextKey = "user_id"
)

// WithContext attaches the logger to the context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the context's logger, or a no-op logger when
// none is attached.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

func withField(ctx context.Context, logger *zap.Logger, key contextKey, value string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, key, value)
	enriched := logger.With(zap.String(string(key), value))
	return WithContext(ctx, enriched), enriched
}

// WithRequestID stores the request id in the context and stamps it on
// the returned logger.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return withField(ctx, logger, RequestIDKey, requestID)
}

// WithTenantID stores the tenant id in the context and stamps it on
// the returned logger.
func WithTenantID(ctx context.Context, logger *zap.Logger, tenantID string) (context.Context, *zap.Logger) {
	return withField(ctx, logger, TenantIDKey, tenantID)
}

// WithUserID stores the user id in the context and stamps it on the
// returned logger.
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	return withField(ctx, logger, UserIDKey, userID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetRequestID returns the request id stored in the context, if any
func GetRequestID(ctx context.Context) string { return stringFromContext(ctx, RequestIDKey) }

// GetTenantID returns the tenant id stored in the context, if any
func GetTenantID(ctx context.Context) string { return stringFromContext(ctx, TenantIDKey) }

// GetUserID returns the user id stored in the context, if any
func GetUserID(ctx context.Context) string { return stringFromContext(ctx, UserIDKey) }

func validSpanContext(ctx context.Context) (trace.SpanContext, bool) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return trace.SpanContext{}, false
	}
	sc := span.SpanContext()
	return sc, sc.IsValid()
}

// GetTraceID returns the active trace id, or "" outside a recorded
// trace.
func GetTraceID(ctx context.Context) string {
	if sc, ok := validSpanContext(ctx); ok {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the active span id, or "" outside a recorded
// trace.
func GetSpanID(ctx context.Context) string {
	if sc, ok := validSpanContext(ctx); ok {
		return sc.SpanID().String()
	}
	return ""
}

// WithTraceContext stamps trace_id and span_id onto the logger when a
// recorded span is active.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc, ok := validSpanContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// ContextLogger stamps trace, request, tenant and user correlation
// fields from the context onto every entry it writes.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L wraps the context's logger: logger.L(ctx).Info("posted entry").
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger wraps an explicit logger instead of the context's one
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) enriched() *zap.Logger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}

	if sc, ok := validSpanContext(cl.ctx); ok {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	for _, key := range []contextKey{RequestIDKey, TenantIDKey, UserIDKey} {
		if v := stringFromContext(cl.ctx, key); v != "" {
			l = l.With(zap.String(string(key), v))
		}
	}
	return l
}

// With returns a child carrying extra fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.enriched().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.enriched().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.enriched().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.enriched().Error(msg, fields...) }
func (cl *ContextLogger) Fatal(msg string, fields ...zap.Field) { cl.enriched().Fatal(msg, fields...) }
func (cl *ContextLogger) Panic(msg string, fields ...zap.Field) { cl.enriched().Panic(msg, fields...) }

// Zap returns the enriched zap logger for callers that need one
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.enriched()
}

// Sugar returns the enriched sugared logger
func (cl *ContextLogger) Sugar() *zap.SugaredLogger {
	return cl.enriched().Sugar()
}
