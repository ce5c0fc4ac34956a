package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// tracedRouter builds an engine with tracing, span tagging and the error
// marker, backed by a span recorder.
func tracedRouter(t *testing.T, skip ...string) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	router := gin.New()
	router.Use(
		RequestID(),
		TracingWithConfig(TracingConfig{
			Enabled:        true,
			ServiceName:    "test-service",
			TracerProvider: tp,
			MeterProvider:  sdkmetric.NewMeterProvider(),
			SkipPaths:      skip,
		}),
		SpanAttributes(),
		SpanErrorMarker(),
	)
	return router, sr
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(RequestIDHeader, "req-42")
	router.ServeHTTP(w, req)
	return w
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := serve(router, http.MethodGet, "/test")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracingWithConfig_TagsStockRoute(t *testing.T) {
	router, sr := tracedRouter(t)
	router.GET("/api/v1/stock/variants/:scanCode/movements", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := serve(router, http.MethodGet, "/api/v1/stock/variants/V-100/movements")
	assert.Equal(t, http.StatusOK, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /api/v1/stock/variants/:scanCode/movements", span.Name())
	assert.NotEqual(t, codes.Error, span.Status().Code)

	attrs := spanAttrs(span)
	assert.Equal(t, "req-42", attrs["request_id"].AsString())
	assert.Equal(t, "V-100", attrs["stock.scan_code"].AsString())
}

func TestTracingWithConfig_SkipPaths(t *testing.T) {
	router, sr := tracedRouter(t, "/health")
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	serve(router, http.MethodGet, "/health")
	assert.Empty(t, sr.Ended())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		errorCode   string
		description string
	}{
		{"not found", http.StatusNotFound, "NOT_FOUND", "Not Found"},
		{"insufficient quantity", http.StatusUnprocessableEntity, "INSUFFICIENT_QUANTITY", "Unprocessable Entity"},
		{"duplicate scan code", http.StatusConflict, "DUPLICATE_SCAN_CODE", "Conflict"},
		{"bad request", http.StatusBadRequest, "", "Client Error"},
		{"persistence failure", http.StatusInternalServerError, "PERSISTENCE_FAILURE", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, sr := tracedRouter(t)
			router.POST("/api/v1/stock/moves", func(c *gin.Context) {
				if tt.errorCode != "" {
					c.Set(ErrorCodeKey, tt.errorCode)
				}
				c.JSON(tt.status, gin.H{"success": false})
			})

			w := serve(router, http.MethodPost, "/api/v1/stock/moves")
			assert.Equal(t, tt.status, w.Code)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			if tt.status < http.StatusInternalServerError {
				assert.Equal(t, tt.description, spans[0].Status().Description)
			}

			attrs := spanAttrs(spans[0])
			assert.Equal(t, int64(tt.status), attrs["http.status_code"].AsInt64())
			if tt.errorCode != "" {
				assert.Equal(t, tt.errorCode, attrs["stock.error_code"].AsString())
			} else {
				assert.NotContains(t, attrs, attribute.Key("stock.error_code"))
			}
		})
	}
}

func TestSpanErrorMarker_SuccessResponse(t *testing.T) {
	router, sr := tracedRouter(t)
	router.POST("/api/v1/stock/receipts", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"success": true})
	})

	serve(router, http.MethodPost, "/api/v1/stock/receipts")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanAttributes_NoSpan(t *testing.T) {
	router := gin.New()
	router.Use(SpanAttributes(), SpanErrorMarker())
	router.GET("/api/v1/stock/parts/:partNo", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	assert.NotPanics(t, func() {
		w := serve(router, http.MethodGet, "/api/v1/stock/parts/P-1")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
