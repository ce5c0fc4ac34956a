package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// TracerProvider and MeterProvider override the global providers
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// SkipPaths are served without a span, e.g. the health probe
	SkipPaths []string
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "stockledger",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin. Span names follow "METHOD route", e.g.
// "POST /api/v1/stock/moves".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	var opts []otelgin.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelgin.WithMeterProvider(cfg.MeterProvider))
	}
	if len(cfg.SkipPaths) > 0 {
		skip := make(map[string]bool, len(cfg.SkipPaths))
		for _, p := range cfg.SkipPaths {
			skip[p] = true
		}
		opts = append(opts, otelgin.WithGinFilter(func(c *gin.Context) bool {
			return !skip[c.FullPath()]
		}))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanAttributes tags the server span with the request ID and, for stock
// routes, the scan code, part number or template in the path. It must run
// after Tracing and RequestID.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

// pathAttributes maps route parameters to span attribute keys.
var pathAttributes = map[string]string{
	"scanCode":   "stock.scan_code",
	"partNo":     "stock.part_number",
	"templateId": "stock.template_id",
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := RequestIDFrom(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	for _, p := range c.Params {
		if key, ok := pathAttributes[p.Key]; ok {
			span.SetAttributes(attribute.String(key, p.Value))
		}
	}
}

// SpanErrorMarker marks the span failed for 4xx and 5xx responses and
// records the stock error code the handler chose. Place it after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		message := "Client Error"
		switch {
		case statusCode >= http.StatusInternalServerError:
			message = "Internal Server Error"
		case statusCode == http.StatusNotFound:
			message = "Not Found"
		case statusCode == http.StatusUnprocessableEntity:
			message = "Unprocessable Entity"
		case statusCode == http.StatusConflict:
			message = "Conflict"
		}
		span.SetStatus(codes.Error, message)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
		if code := c.GetString(ErrorCodeKey); code != "" {
			span.SetAttributes(attribute.String("stock.error_code", code))
		}
	}
}

// ErrorCodeKey is the gin context key under which handlers leave the error
// code of a failed request.
const ErrorCodeKey = "error_code"
