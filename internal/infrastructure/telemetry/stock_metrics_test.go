package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MockStockGaugeProvider struct {
	mock.Mock
}

func (m *MockStockGaugeProvider) BucketTotals(ctx context.Context) (map[stock.Bucket]decimal.Decimal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[stock.Bucket]decimal.Decimal), args.Error(1)
}

func (m *MockStockGaugeProvider) OpenDestinations(ctx context.Context) (map[stock.DestinationKind]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[stock.DestinationKind]int64), args.Error(1)
}

func floatGaugeValue(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) float64 {
	t.Helper()
	g, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	want := attribute.NewSet(attrs...)
	for _, dp := range g.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	t.Fatalf("no data point for %v", attrs)
	return 0
}

func intGaugeValue(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	g, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	want := attribute.NewSet(attrs...)
	for _, dp := range g.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	t.Fatalf("no data point for %v", attrs)
	return 0
}

func TestNewStockMetrics_RequiresMeter(t *testing.T) {
	_, err := NewStockMetrics(StockMetricsConfig{})
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestStockMetrics_MovementRecorded(t *testing.T) {
	ctx := context.Background()
	meter, reader := newTestMeter(t)
	sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter})
	require.NoError(t, err)

	entry := func(dir stock.Direction, b stock.Bucket, amount string, ref stock.ReferenceType) *stock.MovementEntry {
		return &stock.MovementEntry{Direction: dir, Bucket: b, Amount: decimal.RequireFromString(amount), ReferenceType: ref}
	}
	sm.MovementRecorded(ctx, entry(stock.DirectionOut, stock.BucketAvailable, "4.00", stock.RefProduction))
	sm.MovementRecorded(ctx, entry(stock.DirectionIn, stock.BucketUsing, "4.00", stock.RefProduction))
	sm.MovementRecorded(ctx, entry(stock.DirectionOut, stock.BucketAvailable, "1.50", stock.RefProduction))
	sm.MovementRecorded(ctx, nil)

	metrics := collect(t, reader)
	outOfAvailable := []attribute.KeyValue{
		AttrReferenceType.String("production"),
		AttrDirection.String("out"),
		AttrBucket.String("available"),
	}
	assert.Equal(t, int64(2), int64Sum(t, metrics["stock_movements_total"], outOfAvailable...))
	assert.Equal(t, int64(3), int64Sum(t, metrics["stock_movements_total"]))

	moved := metrics["stock_moved_quantity_total"].Data.(metricdata.Sum[float64])
	want := attribute.NewSet(outOfAvailable...)
	var total float64
	for _, dp := range moved.DataPoints {
		if dp.Attributes.Equals(&want) {
			total += dp.Value
		}
	}
	assert.InDelta(t, 5.5, total, 1e-9)
}

func TestStockMetrics_OperationFinished(t *testing.T) {
	ctx := context.Background()
	meter, reader := newTestMeter(t)
	sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	sm.OperationFinished(ctx, "move", 5*time.Millisecond, nil)
	sm.OperationFinished(ctx, "move", 2*time.Millisecond, shared.ErrInsufficientQuantity)
	sm.OperationFinished(ctx, "return", time.Millisecond, shared.NewPersistenceError("update-variant", errors.New("reset")))

	metrics := collect(t, reader)
	ops := metrics["stock_operations_total"]
	assert.Equal(t, int64(1), int64Sum(t, ops, AttrOperation.String("move"), AttrOutcome.String("success")))
	assert.Equal(t, int64(1), int64Sum(t, ops, AttrOperation.String("move"), AttrOutcome.String("failure")))

	errs := metrics["stock_operation_errors_total"]
	assert.Equal(t, int64(1), int64Sum(t, errs, AttrOperation.String("move"), AttrErrorCode.String(shared.CodeInsufficientQuantity)))
	assert.Equal(t, int64(1), int64Sum(t, errs, AttrOperation.String("return"), AttrErrorCode.String(shared.CodePersistenceFailure)))

	hist := metrics["stock_operation_duration_seconds"].Data.(metricdata.Histogram[float64])
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestStockMetrics_Compensated(t *testing.T) {
	ctx := context.Background()
	meter, reader := newTestMeter(t)
	sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter})
	require.NoError(t, err)

	sm.Compensated(ctx, "merge", nil)
	sm.Compensated(ctx, "merge", errors.New("still down"))

	comp := collect(t, reader)["stock_compensations_total"]
	assert.Equal(t, int64(1), int64Sum(t, comp, AttrOperation.String("merge"), AttrOutcome.String("ok")))
	assert.Equal(t, int64(1), int64Sum(t, comp, AttrOperation.String("merge"), AttrOutcome.String("failed")))
}

func TestStockMetrics_PartReconciled(t *testing.T) {
	ctx := context.Background()
	meter, reader := newTestMeter(t)
	sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter})
	require.NoError(t, err)

	sm.PartReconciled(ctx, false)
	sm.PartReconciled(ctx, false)
	sm.PartReconciled(ctx, true)

	reconciled := collect(t, reader)["stock_parts_reconciled_total"]
	assert.Equal(t, int64(2), int64Sum(t, reconciled, AttrDrifted.Bool(false)))
	assert.Equal(t, int64(1), int64Sum(t, reconciled, AttrDrifted.Bool(true)))
}

func TestStockMetrics_CollectGauges(t *testing.T) {
	ctx := context.Background()

	t.Run("records every bucket and destination kind", func(t *testing.T) {
		meter, reader := newTestMeter(t)
		provider := new(MockStockGaugeProvider)
		provider.On("BucketTotals", ctx).Return(map[stock.Bucket]decimal.Decimal{
			stock.BucketAvailable: decimal.RequireFromString("8.00"),
			stock.BucketUsing:     decimal.RequireFromString("5.50"),
		}, nil)
		provider.On("OpenDestinations", ctx).Return(map[stock.DestinationKind]int64{stock.DestinationBMR: 2}, nil)

		sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter, GaugeProvider: provider})
		require.NoError(t, err)
		sm.CollectGauges(ctx)

		metrics := collect(t, reader)
		assert.InDelta(t, 8.0, floatGaugeValue(t, metrics["stock_bucket_quantity"], AttrBucket.String("available")), 1e-9)
		assert.InDelta(t, 5.5, floatGaugeValue(t, metrics["stock_bucket_quantity"], AttrBucket.String("using")), 1e-9)
		assert.InDelta(t, 0.0, floatGaugeValue(t, metrics["stock_bucket_quantity"], AttrBucket.String("pending")), 1e-9)
		assert.Equal(t, int64(2), intGaugeValue(t, metrics["stock_open_destinations"], AttrDestKind.String("bmr")))
		assert.Equal(t, int64(0), intGaugeValue(t, metrics["stock_open_destinations"], AttrDestKind.String("sales")))
		provider.AssertExpectations(t)
	})

	t.Run("provider failure skips the sample", func(t *testing.T) {
		meter, reader := newTestMeter(t)
		provider := new(MockStockGaugeProvider)
		provider.On("BucketTotals", ctx).Return(nil, errors.New("db down"))
		provider.On("OpenDestinations", ctx).Return(nil, errors.New("db down"))

		sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter, GaugeProvider: provider, Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		sm.CollectGauges(ctx)

		metrics := collect(t, reader)
		assert.NotContains(t, metrics, "stock_bucket_quantity")
		assert.NotContains(t, metrics, "stock_open_destinations")
	})
}

func TestStockMetrics_PeriodicCollection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meter, reader := newTestMeter(t)
	provider := new(MockStockGaugeProvider)
	provider.On("BucketTotals", mock.Anything).Return(map[stock.Bucket]decimal.Decimal{}, nil)
	provider.On("OpenDestinations", mock.Anything).Return(map[stock.DestinationKind]int64{}, nil)

	sm, err := NewStockMetrics(StockMetricsConfig{Meter: meter, GaugeProvider: provider, CollectInterval: time.Hour})
	require.NoError(t, err)

	sm.StartPeriodicCollection(ctx)
	sm.StartPeriodicCollection(ctx)
	require.Eventually(t, func() bool {
		_, ok := collect(t, reader)["stock_bucket_quantity"]
		return ok
	}, time.Second, 10*time.Millisecond)

	sm.Stop()
	sm.Stop()
	provider.AssertNumberOfCalls(t, "BucketTotals", 1)
}

func TestGormStockGaugeProvider(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.VariantModel{},
		&models.ProductionItemModel{},
		&models.SaleItemModel{},
		&models.BMRContributionModel{},
	))

	partID := uuid.New()
	now := time.Now().UTC()
	base := func() models.BaseModel { return models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now} }
	variant := func(code, avail, using, pending string) *models.VariantModel {
		return &models.VariantModel{
			AggregateModel:    models.AggregateModel{BaseModel: base(), Version: 1},
			PartID:            partID,
			ScanCode:          code,
			AvailableQty:      decimal.RequireFromString(avail),
			UsingQty:          decimal.RequireFromString(using),
			PendingTestingQty: decimal.RequireFromString(pending),
			ReceivedDate:      now,
		}
	}
	require.NoError(t, db.Create(variant("V1", "6.00", "4.00", "0.00")).Error)
	require.NoError(t, db.Create(variant("V2", "2.50", "1.00", "3.00")).Error)

	require.NoError(t, db.Create(&models.ProductionItemModel{BaseModel: base(), VariantID: uuid.New(), PartID: partID, DepartmentID: "D1", MoveQty: decimal.RequireFromString("4.00")}).Error)
	require.NoError(t, db.Create(&models.ProductionItemModel{BaseModel: base(), VariantID: uuid.New(), PartID: partID, DepartmentID: "D2", MoveQty: decimal.Zero}).Error)
	require.NoError(t, db.Create(&models.BMRContributionModel{BaseModel: base(), LineID: uuid.New(), TemplateID: "T-1", VariantID: uuid.New(), PartID: partID, Barcode: "V2", MoveQty: decimal.RequireFromString("1.00")}).Error)

	provider := NewGormStockGaugeProvider(db)

	totals, err := provider.BucketTotals(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8.50").Equal(totals[stock.BucketAvailable]), totals[stock.BucketAvailable].String())
	assert.True(t, decimal.RequireFromString("5.00").Equal(totals[stock.BucketUsing]))
	assert.True(t, decimal.RequireFromString("3.00").Equal(totals[stock.BucketPending]))

	open, err := provider.OpenDestinations(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[stock.DestinationKind]int64{
		stock.DestinationProduction: 1,
		stock.DestinationSales:      0,
		stock.DestinationBMR:        1,
	}, open)
}
