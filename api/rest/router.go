// Package rest is the HTTP surface of the evaluation engine.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlesim/api/sse"
	mw "github.com/kasuganosora/battlesim/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig collects what NewRouter wires. Nil optional fields disable
// their routes or middleware.
type RouterConfig struct {
	Evaluator Evaluator
	Reports   ReportStore
	Cache     Pinger
	Events    *sse.Handler
	Pool      PoolStats
	Gatherer  prometheus.Gatherer
	Limiter   *mw.RateLimiter
	AdminKey  string
	Logger    *zap.Logger
}

// Pinger is a dependency /health checks. cache.Cache implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

func health(cache Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cache == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "cache": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": "ok"})
	}
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health", "/metrics"), mw.Recovery(logger))

	r.GET("/health", health(cfg.Cache))
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if cfg.Limiter != nil {
		api.Use(cfg.Limiter.Handler())
	}
	{
		evalH := NewEvaluateHandler(cfg.Evaluator, logger)
		api.POST("/evaluate", evalH.Evaluate)
		api.POST("/evaluate/batch", evalH.EvaluateBatch)

		repH := NewReportHandler(cfg.Reports, logger)
		api.GET("/reports", repH.List)
		api.GET("/reports/:id", repH.Get)

		if cfg.Events != nil {
			api.GET("/events", cfg.Events.ServeSSE)
		}

		adminG := api.Group("/admin")
		adminG.Use(AdminAuth(cfg.AdminKey))
		adminG.GET("/engine", NewAdminHandler(cfg.Pool).Engine)
	}
	return r
}
