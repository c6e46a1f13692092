// Package router 提供 HTTP 路由配置
package router

import (
	"storyforge/internal/config"
	"storyforge/internal/interfaces/http/handler"
	"storyforge/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router 指标与健康检查路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	health *handler.HealthHandler
}

// New 创建新的路由器
func New(cfg *config.Config, checkers map[string]handler.HealthChecker) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		cfg:    cfg,
		health: handler.NewHealthHandler(cfg.App.Version, checkers),
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	r.engine.Use(middleware.Metrics())
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.health.Health)
	r.engine.GET("/ready", r.health.Ready)

	path := r.cfg.Observability.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	r.engine.GET(path, gin.WrapH(promhttp.Handler()))
}
