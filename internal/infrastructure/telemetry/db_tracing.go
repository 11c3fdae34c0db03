package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures query span enrichment. LogFullSQL and
// WithoutVariables control whether statement text and bind values reach the
// collector; keep both at their defaults outside development.
type DBTracingConfig struct {
	Enabled          bool
	LogFullSQL       bool
	SlowQueryThresh  time.Duration
	DBSystem         string
	WithoutVariables bool
}

func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:          false,
		LogFullSQL:       false,
		SlowQueryThresh:  200 * time.Millisecond,
		DBSystem:         "postgresql",
		WithoutVariables: true,
	}
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// WithQueryStartTime stamps the context so the after-callback can compute
// elapsed time.
func WithQueryStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryStartTimeKey, time.Now())
}

var gormOperations = []string{"create", "query", "update", "delete", "row", "raw"}

// registerGormCallback hooks fn before or after every gorm operation under
// names like "{prefix}_{op}".
func registerGormCallback(db *gorm.DB, before bool, prefix string, fn func(*gorm.DB)) error {
	for _, op := range gormOperations {
		name := prefix + op
		anchor := "gorm:" + op
		var err error
		switch {
		case before && op == "create":
			err = db.Callback().Create().Before(anchor).Register(name, fn)
		case before && op == "query":
			err = db.Callback().Query().Before(anchor).Register(name, fn)
		case before && op == "update":
			err = db.Callback().Update().Before(anchor).Register(name, fn)
		case before && op == "delete":
			err = db.Callback().Delete().Before(anchor).Register(name, fn)
		case before && op == "row":
			err = db.Callback().Row().Before(anchor).Register(name, fn)
		case before && op == "raw":
			err = db.Callback().Raw().Before(anchor).Register(name, fn)
		case op == "create":
			err = db.Callback().Create().After(anchor).Register(name, fn)
		case op == "query":
			err = db.Callback().Query().After(anchor).Register(name, fn)
		case op == "update":
			err = db.Callback().Update().After(anchor).Register(name, fn)
		case op == "delete":
			err = db.Callback().Delete().After(anchor).Register(name, fn)
		case op == "row":
			err = db.Callback().Row().After(anchor).Register(name, fn)
		case op == "raw":
			err = db.Callback().Raw().After(anchor).Register(name, fn)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// stampStartTime records the wall clock before the statement runs.
func stampStartTime(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

// annotateQuerySpan enriches the active span with row counts, table name,
// error status and slow-query markers.
func annotateQuerySpan(db *gorm.DB, slowThresh time.Duration) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// A missing row is an answer, not a failure.
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if startTime, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		if elapsed := time.Since(startTime); elapsed > slowThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", slowThresh.Milliseconds()),
			))
		}
	}
}

// DBTracingPlugin installs otelgorm plus the timing and slow query callbacks.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm attaches the otelgorm plugin and the custom callbacks to
// db. Registering twice on the same instance fails on duplicate names.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := registerGormCallback(db, true, "otel_timing:before_", stampStartTime); err != nil {
		return err
	}
	if err := registerGormCallback(db, false, "otel_slow_query:", p.slowQueryCallback); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

func (p *DBTracingPlugin) slowQueryCallback(db *gorm.DB) {
	annotateQuerySpan(db, p.config.SlowQueryThresh)
}

// DBTracingCallback is the standalone variant for databases that already
// carry their own tracing plugin.
type DBTracingCallback struct {
	slowQueryThresh time.Duration
}

func NewDBTracingCallback(slowQueryThresh time.Duration) *DBTracingCallback {
	return &DBTracingCallback{slowQueryThresh: slowQueryThresh}
}

// BeforeCallback stamps the query start time.
func (c *DBTracingCallback) BeforeCallback(db *gorm.DB) {
	stampStartTime(db)
}

// AfterCallback annotates the active span for the finished statement.
func (c *DBTracingCallback) AfterCallback(db *gorm.DB) {
	annotateQuerySpan(db, c.slowQueryThresh)
}

// RegisterCallbacks hooks both callbacks on every gorm operation.
func (c *DBTracingCallback) RegisterCallbacks(db *gorm.DB) error {
	if err := registerGormCallback(db, true, "otel_timing:before_", c.BeforeCallback); err != nil {
		return err
	}
	return registerGormCallback(db, false, "otel_timing:after_", c.AfterCallback)
}
