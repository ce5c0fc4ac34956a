package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DBMetrics holds query and connection pool instruments.
type DBMetrics struct {
	poolConnections    *Gauge[int64]
	poolConnectionsMax *Gauge[int64]

	queryTotal     *Counter[int64]
	queryErrors    *Counter[int64]
	queryDuration  *Histogram
	slowQueryTotal *Counter[int64]

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDBMetrics creates the database instruments on meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error

	if m.poolConnections, err = NewGauge(meter, "db_pool_connections", "Number of connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolConnectionsMax, err = NewGauge(meter, "db_pool_connections_max", "Maximum number of connections in the pool", "{connection}"); err != nil {
		return nil, err
	}
	if m.queryTotal, err = NewCounter(meter, "db_query_total", "Total number of database queries by operation type", "{query}"); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter, "db_query_errors_total", "Failed database queries by operation type", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the configured threshold", "{query}"); err != nil {
		return nil, err
	}
	return m, nil
}

// StartPoolStatsCollection samples sql.DB pool stats until Stop or ctx ends.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context, sqlDB *sql.DB) {
	if sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection: sqlDB not set")
		return
	}
	m.sqlDB = sqlDB

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Started database connection pool stats collection",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool stats collection. Safe to call multiple times.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records one finished statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	op := AttrDBOperation.String(operation)

	m.queryTotal.Inc(ctx, op)
	m.queryDuration.RecordDuration(ctx, duration, op)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, op)
	}

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// =============================================================================
// GORM Plugin for Query Metrics
// =============================================================================

// DBMetricsPlugin is a GORM plugin that feeds DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// NewDBMetricsPlugin creates a new GORM plugin for database metrics.
func NewDBMetricsPlugin(metrics *DBMetrics) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics}
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

type dbMetricsContextKey string

const dbMetricsStartTimeKey dbMetricsContextKey = "db_metrics_start_time"

// Initialize registers the GORM callbacks for metrics collection.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		callback gormRegister
		hook     func(*gorm.DB)
		name     string
	}{
		{cb.Create().Before("gorm:create"), startQueryClock, "db_metrics:before_create"},
		{cb.Create().After("gorm:create"), p.record("INSERT"), "db_metrics:after_create"},
		{cb.Query().Before("gorm:query"), startQueryClock, "db_metrics:before_query"},
		{cb.Query().After("gorm:query"), p.record("SELECT"), "db_metrics:after_query"},
		{cb.Update().Before("gorm:update"), startQueryClock, "db_metrics:before_update"},
		{cb.Update().After("gorm:update"), p.record("UPDATE"), "db_metrics:after_update"},
		{cb.Delete().Before("gorm:delete"), startQueryClock, "db_metrics:before_delete"},
		{cb.Delete().After("gorm:delete"), p.record("DELETE"), "db_metrics:after_delete"},
		{cb.Row().Before("gorm:row"), startQueryClock, "db_metrics:before_row"},
		{cb.Row().After("gorm:row"), p.record(""), "db_metrics:after_row"},
		{cb.Raw().Before("gorm:raw"), startQueryClock, "db_metrics:before_raw"},
		{cb.Raw().After("gorm:raw"), p.record(""), "db_metrics:after_raw"},
	}

	for _, h := range hooks {
		if err := h.callback.Register(h.name, h.hook); err != nil {
			return fmt.Errorf("register %s: %w", h.name, err)
		}
	}
	return nil
}

func startQueryClock(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbMetricsStartTimeKey, time.Now())
}

// record returns the after-callback for a fixed operation; an empty
// operation is detected from the statement text.
func (p *DBMetricsPlugin) record(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		var duration time.Duration
		if start, ok := ctx.Value(dbMetricsStartTimeKey).(time.Time); ok {
			duration = time.Since(start)
		}
		op := operation
		if op == "" {
			op = detectOperationType(db.Statement.SQL.String())
		}
		p.metrics.RecordQuery(ctx, op, db.Statement.Table, duration, db.Error)
	}
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

// RegisterDBMetrics installs query metrics on db and starts pool sampling.
// Call Stop on the result during shutdown.
func RegisterDBMetrics(ctx context.Context, db *gorm.DB, meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	metrics, err := NewDBMetrics(meter, cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := db.Use(NewDBMetricsPlugin(metrics)); err != nil {
		return nil, err
	}
	metrics.StartPoolStatsCollection(ctx, sqlDB)

	metrics.logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", metrics.config.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", metrics.config.PoolStatsInterval),
	)
	return metrics, nil
}
