package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig configures query and connection pool instrumentation.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

func (c DBMetricsConfig) withDefaults() DBMetricsConfig {
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	if c.PoolStatsInterval == 0 {
		c.PoolStatsInterval = 15 * time.Second
	}
	return c
}

func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{Enabled: true}.withDefaults()
}

// DBMetrics bundles the database instruments and the pool stats sampler.
type DBMetrics struct {
	poolConnections    *Gauge
	poolConnectionsMax *Gauge

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter

	config   DBMetricsConfig
	logger   *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	set := NewInstrumentSet(meter)
	m := &DBMetrics{
		poolConnections:    set.Gauge("db_pool_connections", "Number of connections in the pool by state", "{connection}"),
		poolConnectionsMax: set.Gauge("db_pool_connections_max", "Maximum number of connections in the pool", "{connection}"),
		queryTotal:         set.Counter("db_query_total", "Total number of database queries by operation type", "{query}"),
		queryDuration: set.Histogram(HistogramOpts{
			Name:        "db_query_duration_seconds",
			Description: "Database query latency distribution in seconds",
			Unit:        "s",
			Boundaries:  DBDurationBuckets,
		}),
		slowQueryTotal: set.Counter("db_slow_query_total", "Total number of slow database queries", "{query}"),
		config:         cfg.withDefaults(),
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
	if err := set.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// StartPoolSampler records pool gauges from sqlDB on the configured
// interval until Stop is called or ctx ends.
func (m *DBMetrics) StartPoolSampler(ctx context.Context, sqlDB *sql.DB) {
	if sqlDB == nil {
		m.logger.Warn("Pool sampler not started, sql.DB is nil")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		for {
			m.samplePool(ctx, sqlDB)
			select {
			case <-ticker.C:
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Database pool sampler started",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) samplePool(ctx context.Context, sqlDB *sql.DB) {
	stats := sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))

	// Open = Idle + InUse. WaitCount is cumulative, not a state, so it
	// stays out of this gauge.
	for state, n := range map[string]int{
		"idle":   stats.Idle,
		"in_use": stats.InUse,
		"open":   stats.OpenConnections,
	} {
		m.poolConnections.Record(ctx, int64(n), AttrDBState.String(state))
	}
}

// Stop halts the sampler. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery counts the query, records its latency and flags it when it
// crossed the slow threshold.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation string, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// DBMetricsPlugin is the gorm plugin that feeds DBMetrics per statement.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{metrics: metrics, logger: logger}
}

func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

// Initialize hooks timing callbacks around every gorm operation.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	if err := registerGormCallback(db, true, "db_metrics:before_", stampMetricsStartTime); err != nil {
		return err
	}
	if err := p.registerAfterCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database metrics plugin initialized")
	return nil
}

func stampMetricsStartTime(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbMetricsStartTimeKey, time.Now())
}

func (p *DBMetricsPlugin) registerAfterCallbacks(db *gorm.DB) error {
	record := func(operation string) func(*gorm.DB) {
		return func(db *gorm.DB) { p.recordMetrics(db, operation) }
	}
	// Row and Raw carry arbitrary SQL, so the operation comes from the text.
	fromSQL := func(db *gorm.DB) {
		p.recordMetrics(db, detectOperationType(db.Statement.SQL.String()))
	}

	if err := db.Callback().Create().After("gorm:create").Register("db_metrics:after_create", record("INSERT")); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("db_metrics:after_query", record("SELECT")); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("db_metrics:after_update", record("UPDATE")); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("db_metrics:after_delete", record("DELETE")); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("db_metrics:after_row", fromSQL); err != nil {
		return err
	}
	return db.Callback().Raw().After("gorm:raw").Register("db_metrics:after_raw", fromSQL)
}

func (p *DBMetricsPlugin) recordMetrics(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var duration time.Duration
	if startTime, ok := ctx.Value(dbMetricsStartTimeKey).(time.Time); ok {
		duration = time.Since(startTime)
	}

	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration, db.Error)
}

func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

type dbMetricsContextKey string

const dbMetricsStartTimeKey dbMetricsContextKey = "db_metrics_start_time"
