package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/lock"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers come first so the bridged logger and otelgorm see them
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry), baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfigFrom(cfg.Telemetry), baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfigFrom(cfg.Telemetry), baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize logger provider", zap.Error(err))
	}

	log := telemetry.BridgeLogger(baseLog, lp, cfg.Telemetry.ServiceName)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting stock ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("database", cfg.Database.Driver),
	)

	if err := stock.SetRoundingMode(stock.RoundingMode(cfg.Stock.RoundingMode)); err != nil {
		log.Fatal("Invalid rounding mode", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := prepareSchema(db, log); err != nil {
		log.Fatal("Failed to prepare schema", zap.Error(err))
	}

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfigFrom(cfg.Telemetry, cfg.Database.Driver), log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	var dbMetrics *telemetry.DBMetrics
	if mp.IsEnabled() {
		dbMetrics, err = telemetry.RegisterDBMetrics(ctx, db.DB, mp.Meter("stockledger.db"), telemetry.DBMetricsConfig{
			SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err != nil {
			log.Warn("Database metrics disabled", zap.Error(err))
		}
	}

	locker, closeLocker := newLocker(ctx, cfg, log)
	defer closeLocker()

	stockMetrics, err := telemetry.NewStockMetrics(telemetry.StockMetricsConfig{
		Meter:           mp.Meter("stockledger.stock"),
		Logger:          log,
		CollectInterval: cfg.Telemetry.MetricsInterval,
		GaugeProvider:   telemetry.NewGormStockGaugeProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to create stock metrics", zap.Error(err))
	}
	if mp.IsEnabled() {
		stockMetrics.StartPeriodicCollection(ctx)
	}

	scope := persistence.NewGormTransactionScope(db.DB)
	settings := appstock.Settings{
		MaxAttempts: cfg.Stock.MaxAttempts,
		Locker:      locker,
		Observer:    stockMetrics,
		Logger:      log,
	}
	recomputer := appstock.NewAggregateRecomputer(scope, log)
	stockHandler := handler.NewStockHandler(
		appstock.NewTransferCoordinator(scope, settings),
		appstock.NewTemplateMerger(scope, settings),
		appstock.NewReceiptService(scope, settings),
		recomputer,
		appstock.NewQueryService(scope),
	)

	stopSweep := startReconcileSweep(ctx, cfg.Reconcile, recomputer, persistence.NewGormPartRepository(db.DB), stockMetrics, log)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		HTTP:             cfg.HTTP,
		OperationTimeout: cfg.Stock.OperationTimeout,
		TracingEnabled:   tp.IsEnabled(),
		MeterProvider:    mp,
		Logger:           log,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	r := router.NewRouter(engine, router.WithHealth(systemHandler.Health))
	r.Register("/stock", stockHandler)
	r.Register("/system", router.RegistrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/info", systemHandler.GetSystemInfo)
	}))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	stopSweep(shutdownCtx)
	stockMetrics.Stop()
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("Logger provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// prepareSchema creates the SQLite schema from the models and brings a
// PostgreSQL database up to the embedded migrations.
func prepareSchema(db *persistence.Database, log *zap.Logger) error {
	if db.Driver == "sqlite" {
		return db.AutoMigrate()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, "", log)
	if err != nil {
		return err
	}
	// closing the migrator would close the shared connection pool
	return m.Up()
}

// startReconcileSweep starts the daily reconcile trigger and its worker pool
// when enabled. The returned function stops both.
func startReconcileSweep(
	ctx context.Context,
	cfg config.ReconcileConfig,
	reconciler scheduler.Reconciler,
	parts scheduler.PartLister,
	observer scheduler.ReconcileObserver,
	log *zap.Logger,
) func(context.Context) {
	if !cfg.Enabled {
		return func(context.Context) {}
	}

	sched, err := scheduler.NewScheduler(scheduler.SchedulerConfigFrom(cfg), scheduler.NewReconcileExecutor(reconciler, observer, log), log)
	if err != nil {
		log.Fatal("Failed to create reconcile scheduler", zap.Error(err))
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start reconcile scheduler", zap.Error(err))
	}
	trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfigFrom(cfg), sched, parts, log)
	if err := trigger.Start(ctx); err != nil {
		log.Fatal("Failed to start reconcile trigger", zap.Error(err))
	}

	return func(stopCtx context.Context) {
		if err := trigger.Stop(stopCtx); err != nil {
			log.Error("Reconcile trigger shutdown failed", zap.Error(err))
		}
		if err := sched.Stop(stopCtx); err != nil {
			log.Error("Reconcile scheduler shutdown failed", zap.Error(err))
		}
	}
}

// newLocker returns the Redis locker when Redis is enabled and the
// in-process locker otherwise.
func newLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (appstock.Locker, func()) {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled, using in-process variant locks")
		return lock.NewLocalLocker(), func() {}
	}

	client, err := lock.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Using Redis variant locks", zap.String("addr", cfg.Redis.Addr()))
	return lock.NewRedisLocker(client, cfg.Stock, lock.WithLogger(log)), func() {
		if err := client.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}
}
