package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labelops/backend/internal/infrastructure/logger"
	"github.com/labelops/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig selects the middleware chain of the HTTP engine
type EngineConfig struct {
	Mode           string
	Logger         *zap.Logger
	CORS           middleware.CORSConfig
	TrustedProxies []string
	MaxBodySize    int64
	RequestTimeout time.Duration
	Tracing        middleware.TracingConfig
	// Meter records HTTP metrics when set
	Meter     metric.Meter
	Profiling bool
}

// NewEngine builds a gin engine with the standard middleware chain. Recovery
// runs outermost so that panics in any later middleware become a JSON 500.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.HandleMethodNotAllowed = true

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(cfg.Tracing),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.Profiling(cfg.Profiling, "/health"),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
		middleware.Timeout(cfg.RequestTimeout),
	)
	return engine, nil
}
