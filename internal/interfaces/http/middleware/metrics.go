package middleware

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	Logger        *zap.Logger
	Enabled       bool
}

type httpMetrics struct {
	requestTotal    *telemetry.Counter[int64]
	requestDuration *telemetry.Histogram
	requestSize     *telemetry.Histogram
	responseSize    *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := telemetry.NewCounter(
		meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	requestSize, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size distribution in bytes",
		Unit:        "By",
		Boundaries:  []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
	})
	if err != nil {
		return nil, err
	}

	responseSize, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size distribution in bytes",
		Unit:        "By",
		Boundaries:  []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000},
	})
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestSize:     requestSize,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics returns a middleware recording request count, latency, sizes
// and in-flight requests. Failed stock requests also carry their error code.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true, cfg.Logger)
}

// HTTPMetricsWithMeter returns HTTP metrics middleware using an existing meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool, logger *zap.Logger) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		if logger != nil {
			logger.Warn("HTTP metrics disabled, instrument setup failed", zap.Error(err))
		}
		return passThrough
	}
	return httpMetricsMiddleware(metrics)
}

func passThrough(c *gin.Context) {
	c.Next()
}

func httpMetricsMiddleware(metrics *httpMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		requestSize := getRequestSize(c)

		metrics.activeRequests.Add(ctx, 1)
		c.Next()
		metrics.activeRequests.Add(ctx, -1)

		recordHTTPMetrics(ctx, metrics, requestMetrics{
			method:       c.Request.Method,
			route:        getRoutePattern(c),
			statusCode:   c.Writer.Status(),
			errorCode:    c.GetString(ErrorCodeKey),
			duration:     time.Since(start),
			requestSize:  requestSize,
			responseSize: c.Writer.Size(),
		})
	}
}

type requestMetrics struct {
	method       string
	route        string
	statusCode   int
	errorCode    string
	duration     time.Duration
	requestSize  int64
	responseSize int
}

func recordHTTPMetrics(ctx context.Context, metrics *httpMetrics, r requestMetrics) {
	requestAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(r.method),
		telemetry.AttrHTTPRoute.String(r.route),
		telemetry.AttrHTTPStatusCode.Int(r.statusCode),
	}
	if r.errorCode != "" {
		requestAttrs = append(requestAttrs, telemetry.AttrErrorCode.String(r.errorCode))
	}
	metrics.requestTotal.Inc(ctx, requestAttrs...)

	// Latency and sizes only by method and route
	baseAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(r.method),
		telemetry.AttrHTTPRoute.String(r.route),
	}
	metrics.requestDuration.RecordDuration(ctx, r.duration, baseAttrs...)

	if r.requestSize > 0 {
		metrics.requestSize.Record(ctx, float64(r.requestSize), baseAttrs...)
	}
	if r.responseSize > 0 {
		metrics.responseSize.Record(ctx, float64(r.responseSize), baseAttrs...)
	}
}

// getRoutePattern returns the matched route, e.g. "/api/v1/stock/parts/:partNo",
// so scan codes never become label values.
func getRoutePattern(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unknown"
	}
	return route
}

func getRequestSize(c *gin.Context) int64 {
	if cl := c.Request.ContentLength; cl > 0 {
		return cl
	}
	return 0
}
