// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 可被就绪检查探测的依赖（Redis 配额计数、Postgres 用量流水）
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version  string
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthHandler 创建健康检查处理器，nil 依赖会被忽略
func NewHealthHandler(version string, checkers map[string]HealthChecker) *HealthHandler {
	h := &HealthHandler{
		version:  version,
		checkers: make(map[string]HealthChecker, len(checkers)),
		timeout:  2 * time.Second,
	}
	for name, c := range checkers {
		if c != nil {
			h.checkers[name] = c
		}
	}
	return h
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadinessCheck 单个依赖的检查结果
type ReadinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*ReadinessCheck `json:"checks,omitempty"`
}

// Health 健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Ready 就绪检查：所有已配置依赖均可达时返回 200
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadinessResponse{Status: "ok", Checks: make(map[string]*ReadinessCheck, len(names))}
	for _, name := range names {
		start := time.Now()
		err := h.checkers[name].HealthCheck(ctx)
		check := &ReadinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			check.Status = "error"
			check.Error = err.Error()
			resp.Status = "not_ready"
		}
		resp.Checks[name] = check
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
