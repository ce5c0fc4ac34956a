package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type memoryLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func newMemoryLoggerProvider(t *testing.T) (*LoggerProvider, *memoryLogExporter) {
	t.Helper()
	exporter := &memoryLogExporter{}
	sdk := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	lp := newLoggerProviderWith(sdk, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })
	return lp, exporter
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestLogsConfigFrom(t *testing.T) {
	cfg := LogsConfigFrom(config.TelemetryConfig{Enabled: true, LogsEnabled: true, CollectorEndpoint: "otel:4317"})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel:4317", cfg.CollectorEndpoint)

	cfg = LogsConfigFrom(config.TelemetryConfig{Enabled: false, LogsEnabled: true})
	assert.False(t, cfg.Enabled)
}

func TestNewZapOTELCore(t *testing.T) {
	t.Run("disabled provider yields a nop core", func(t *testing.T) {
		core := NewZapOTELCore(ZapBridgeConfig{ServiceName: "stockledger"})
		assert.False(t, core.Enabled(zapcore.ErrorLevel))
	})

	t.Run("level filter drops lower entries", func(t *testing.T) {
		lp, exporter := newMemoryLoggerProvider(t)
		core := NewZapOTELCore(ZapBridgeConfig{ServiceName: "stockledger", LoggerProvider: lp, Level: zapcore.WarnLevel})

		logger := zap.New(core).With(zap.String("part_number", "P-1"))
		logger.Info("variant received")
		logger.Warn("stock reconciled with drift")
		logger.Error("compensation failed")

		assert.Equal(t, []string{"stock reconciled with drift", "compensation failed"}, exporter.bodies())
	})

	t.Run("debug level keeps the raw core", func(t *testing.T) {
		lp, _ := newMemoryLoggerProvider(t)
		core := NewZapOTELCore(ZapBridgeConfig{ServiceName: "stockledger", LoggerProvider: lp, Level: zapcore.DebugLevel})
		_, filtered := core.(*levelFilterCore)
		assert.False(t, filtered)
	})
}

func TestBridgeLogger(t *testing.T) {
	t.Run("returns base logger when export is off", func(t *testing.T) {
		base := zaptest.NewLogger(t)
		assert.Same(t, base, BridgeLogger(base, nil, "stockledger"))
	})

	t.Run("writes to both cores", func(t *testing.T) {
		lp, exporter := newMemoryLoggerProvider(t)
		observed, logs := observer.New(zapcore.InfoLevel)

		logger := BridgeLogger(zap.New(observed), lp, "stockledger")
		logger.Info("stock moved", zap.String("scan_code", "V1"))
		logger.Debug("dropped at info level")

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "stock moved", logs.All()[0].Message)
		assert.Equal(t, []string{"stock moved"}, exporter.bodies())
	})

	t.Run("severity is carried across", func(t *testing.T) {
		lp, exporter := newMemoryLoggerProvider(t)
		observed, _ := observer.New(zapcore.InfoLevel)
		logger := BridgeLogger(zap.New(observed), lp, "stockledger")
		logger.Error("persistence failure")

		exporter.mu.Lock()
		defer exporter.mu.Unlock()
		require.Len(t, exporter.records, 1)
		assert.Equal(t, otellog.SeverityError, exporter.records[0].Severity())
	})
}
