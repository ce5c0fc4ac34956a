package router

import (
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthPath is served outside the versioned API and skipped by tracing
const HealthPath = "/health"

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// EngineConfig holds what the global middleware chain needs
type EngineConfig struct {
	ServiceName      string
	HTTP             config.HTTPConfig
	OperationTimeout time.Duration
	TracingEnabled   bool
	MeterProvider    *telemetry.MeterProvider
	Logger           *zap.Logger
}

// NewEngine creates a gin engine with the global middleware chain:
// recovery, request IDs, security headers, CORS, tracing, metrics, access
// logging, the body limit and the per-request timeout.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Secure(),
		middleware.CORSWithConfig(middleware.CORSConfigFrom(cfg.HTTP)),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
			SkipPaths:   []string{HealthPath},
		}),
		middleware.SpanAttributes(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: cfg.MeterProvider,
			Logger:        log,
			Enabled:       cfg.MeterProvider != nil,
		}),
		logger.GinMiddleware(log),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.OperationTimeout),
	)
	return engine, nil
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	health     gin.HandlerFunc
	mounts     []mount
}

type mount struct {
	prefix     string
	registrar  RouteRegistrar
	middleware []gin.HandlerFunc
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithHealth serves h at HealthPath
func WithHealth(h gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.health = h
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register mounts registrar under /api/<version><prefix> with optional
// group middleware
func (r *Router) Register(prefix string, registrar RouteRegistrar, mw ...gin.HandlerFunc) *Router {
	r.mounts = append(r.mounts, mount{prefix: prefix, registrar: registrar, middleware: mw})
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	if r.health != nil {
		r.engine.GET(HealthPath, r.health)
	}

	api := r.engine.Group("/api/" + r.apiVersion)
	for _, m := range r.mounts {
		group := api.Group(m.prefix)
		if len(m.middleware) > 0 {
			group.Use(m.middleware...)
		}
		m.registrar.RegisterRoutes(group)
	}
}

// RegistrarFunc adapts a function to RouteRegistrar
type RegistrarFunc func(rg *gin.RouterGroup)

// RegisterRoutes implements RouteRegistrar
func (f RegistrarFunc) RegisterRoutes(rg *gin.RouterGroup) {
	f(rg)
}
