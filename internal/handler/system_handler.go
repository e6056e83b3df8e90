package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// HealthCheck 依赖健康检查
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SystemHandler 系统处理器
type SystemHandler struct {
	version string
	checks  []HealthCheck
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(version string, checks ...HealthCheck) *SystemHandler {
	return &SystemHandler{version: version, checks: checks}
}

// Health 健康检查，任一依赖失败时返回 503
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			components[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[check.Name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"version":    h.version,
		"components": components,
	})
}
