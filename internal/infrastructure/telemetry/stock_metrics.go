package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when NewStockMetrics gets no meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// StockGaugeProvider reports point-in-time stock state for the periodic gauges.
type StockGaugeProvider interface {
	// BucketTotals sums every variant's quantity per bucket
	BucketTotals(ctx context.Context) (map[stock.Bucket]decimal.Decimal, error)
	// OpenDestinations counts destination records still holding quantity
	OpenDestinations(ctx context.Context) (map[stock.DestinationKind]int64, error)
}

// StockMetricsConfig holds configuration for stock metrics.
type StockMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	GaugeProvider   StockGaugeProvider
}

// StockMetrics records stock movements and operation outcomes. It is the
// observer the stock services report to.
type StockMetrics struct {
	logger *zap.Logger

	movementsTotal     *Counter[int64]
	movedQuantity      *Counter[float64]
	operationsTotal    *Counter[int64]
	operationErrors    *Counter[int64]
	operationDuration  *Histogram
	compensationsTotal *Counter[int64]
	reconciledTotal    *Counter[int64]

	bucketQuantity   *Gauge[float64]
	openDestinations *Gauge[int64]

	gaugeProvider   StockGaugeProvider
	collectInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	collectOnce     sync.Once
	wg              sync.WaitGroup
}

// NewStockMetrics creates the stock instruments on cfg.Meter.
func NewStockMetrics(cfg StockMetricsConfig) (*StockMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = time.Minute
	}

	sm := &StockMetrics{
		logger:          log,
		gaugeProvider:   cfg.GaugeProvider,
		collectInterval: interval,
		stopChan:        make(chan struct{}),
	}

	var err error
	if sm.movementsTotal, err = NewCounter(cfg.Meter, "stock_movements_total", "Ledger entries appended", "{entry}"); err != nil {
		return nil, err
	}
	if sm.movedQuantity, err = NewFloatCounter(cfg.Meter, "stock_moved_quantity_total", "Quantity carried by ledger entries", "{unit}"); err != nil {
		return nil, err
	}
	if sm.operationsTotal, err = NewCounter(cfg.Meter, "stock_operations_total", "Stock operations by outcome", "{operation}"); err != nil {
		return nil, err
	}
	if sm.operationErrors, err = NewCounter(cfg.Meter, "stock_operation_errors_total", "Failed stock operations by error code", "{operation}"); err != nil {
		return nil, err
	}
	if sm.operationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stock_operation_duration_seconds",
		Description: "Stock operation latency including lock waits and retries",
		Unit:        "s",
		Boundaries:  OperationDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.compensationsTotal, err = NewCounter(cfg.Meter, "stock_compensations_total", "Undo or reconcile passes after a failed unit of work", "{compensation}"); err != nil {
		return nil, err
	}
	if sm.reconciledTotal, err = NewCounter(cfg.Meter, "stock_parts_reconciled_total", "Parts recomputed by the reconcile sweep", "{part}"); err != nil {
		return nil, err
	}
	if sm.bucketQuantity, err = NewFloatGauge(cfg.Meter, "stock_bucket_quantity", "Quantity held per bucket across all variants", "{unit}"); err != nil {
		return nil, err
	}
	if sm.openDestinations, err = NewGauge(cfg.Meter, "stock_open_destinations", "Destination records still holding quantity", "{record}"); err != nil {
		return nil, err
	}

	return sm, nil
}

// MovementRecorded counts one appended ledger entry.
func (sm *StockMetrics) MovementRecorded(ctx context.Context, entry *stock.MovementEntry) {
	if entry == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrReferenceType.String(string(entry.ReferenceType)),
		AttrDirection.String(string(entry.Direction)),
		AttrBucket.String(string(entry.Bucket)),
	}
	sm.movementsTotal.Inc(ctx, attrs...)
	sm.movedQuantity.Add(ctx, entry.Amount.InexactFloat64(), attrs...)
}

// OperationFinished records the outcome and latency of one stock operation.
func (sm *StockMetrics) OperationFinished(ctx context.Context, operation string, elapsed time.Duration, err error) {
	op := AttrOperation.String(operation)
	sm.operationDuration.RecordDuration(ctx, elapsed, op)

	if err == nil {
		sm.operationsTotal.Inc(ctx, op, AttrOutcome.String("success"))
		return
	}

	code := shared.ErrorCode(err)
	sm.operationsTotal.Inc(ctx, op, AttrOutcome.String("failure"))
	sm.operationErrors.Inc(ctx, op, AttrErrorCode.String(code))

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("code", code),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	}
	switch code {
	case shared.CodePersistenceFailure, shared.CodeCompensationFailed:
		logger.WithLogger(ctx, sm.logger).Error("stock operation failed", fields...)
	default:
		logger.WithLogger(ctx, sm.logger).Debug("stock operation rejected", fields...)
	}
}

// Compensated counts an undo or reconcile pass; err is the compensation's own failure.
func (sm *StockMetrics) Compensated(ctx context.Context, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	sm.compensationsTotal.Inc(ctx, AttrOperation.String(operation), AttrOutcome.String(outcome))
}

// PartReconciled counts one part recomputed by the reconcile sweep.
func (sm *StockMetrics) PartReconciled(ctx context.Context, drifted bool) {
	sm.reconciledTotal.Inc(ctx, AttrDrifted.Bool(drifted))
}

// StartPeriodicCollection samples the gauge provider every interval until
// Stop or ctx ends. Later calls are ignored.
func (sm *StockMetrics) StartPeriodicCollection(ctx context.Context) {
	if sm.gaugeProvider == nil {
		sm.logger.Debug("No stock gauge provider configured, skipping periodic collection")
		return
	}
	sm.collectOnce.Do(func() {
		sm.wg.Add(1)
		go sm.runPeriodicCollection(ctx)
	})
}

func (sm *StockMetrics) runPeriodicCollection(ctx context.Context) {
	defer sm.wg.Done()
	ticker := time.NewTicker(sm.collectInterval)
	defer ticker.Stop()

	sm.CollectGauges(ctx)
	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic stock metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CollectGauges(ctx)
		}
	}
}

// CollectGauges records one sample of the stock gauges.
func (sm *StockMetrics) CollectGauges(ctx context.Context) {
	if sm.gaugeProvider == nil {
		return
	}

	totals, err := sm.gaugeProvider.BucketTotals(ctx)
	if err != nil {
		sm.logger.Warn("Failed to read bucket totals for metrics", zap.Error(err))
	} else {
		for _, b := range []stock.Bucket{stock.BucketAvailable, stock.BucketUsing, stock.BucketPending} {
			sm.bucketQuantity.Record(ctx, totals[b].InexactFloat64(), AttrBucket.String(string(b)))
		}
	}

	open, err := sm.gaugeProvider.OpenDestinations(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count open destinations for metrics", zap.Error(err))
		return
	}
	for _, kind := range []stock.DestinationKind{stock.DestinationProduction, stock.DestinationSales, stock.DestinationBMR} {
		sm.openDestinations.Record(ctx, open[kind], AttrDestKind.String(string(kind)))
	}
}

// Stop ends periodic collection. Safe to call multiple times.
func (sm *StockMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
		sm.wg.Wait()
	})
}
