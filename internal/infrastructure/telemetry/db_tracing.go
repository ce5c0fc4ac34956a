package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables in span statements (dev only)
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // "postgresql" or "sqlite"
	TracerProvider  trace.TracerProvider
}

// DBTracingConfigFrom derives query tracing settings for the configured driver.
func DBTracingConfigFrom(cfg config.TelemetryConfig, driver string) DBTracingConfig {
	system := "postgresql"
	if driver == "sqlite" {
		system = "sqlite"
	}
	return DBTracingConfig{
		Enabled:         cfg.Enabled && cfg.DBTraceEnabled,
		LogFullSQL:      cfg.DBLogFullSQL,
		SlowQueryThresh: cfg.DBSlowQueryThresh,
		DBSystem:        system,
	}
}

// DBTracingPlugin registers otelgorm and annotates its spans with row
// counts, table names and slow query markers.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin with the given configuration.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
	}
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// RegisterOtelGorm installs otelgorm and the annotation callbacks on db.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.config.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.config.TracerProvider))
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

type gormRegister interface {
	Register(name string, fn func(*gorm.DB)) error
}

// registerCallbacks hooks timing before each gorm operation and the span
// annotation after it. The annotation must run before otelgorm ends the span.
func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		callback gormRegister
		hook     func(*gorm.DB)
		name     string
	}{
		{cb.Create().Before("gorm:create"), markQueryStart, "otel_timing:before_create"},
		{cb.Create().After("gorm:create").Before("otel:after:create"), p.annotate, "otel_slow_query:create"},

		{cb.Query().Before("gorm:query"), markQueryStart, "otel_timing:before_query"},
		{cb.Query().After("gorm:query").Before("otel:after:select"), p.annotate, "otel_slow_query:query"},

		{cb.Update().Before("gorm:update"), markQueryStart, "otel_timing:before_update"},
		{cb.Update().After("gorm:update").Before("otel:after:update"), p.annotate, "otel_slow_query:update"},

		{cb.Delete().Before("gorm:delete"), markQueryStart, "otel_timing:before_delete"},
		{cb.Delete().After("gorm:delete").Before("otel:after:delete"), p.annotate, "otel_slow_query:delete"},

		{cb.Row().Before("gorm:row"), markQueryStart, "otel_timing:before_row"},
		{cb.Row().After("gorm:row").Before("otel:after:row"), p.annotate, "otel_slow_query:row"},

		{cb.Raw().Before("gorm:raw"), markQueryStart, "otel_timing:before_raw"},
		{cb.Raw().After("gorm:raw").Before("otel:after:raw"), p.annotate, "otel_slow_query:raw"},
	}

	for _, h := range hooks {
		if err := h.callback.Register(h.name, h.hook); err != nil {
			return fmt.Errorf("register %s: %w", h.name, err)
		}
	}
	return nil
}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	startTime, ok := ctx.Value(queryStartTimeKey).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(startTime); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
