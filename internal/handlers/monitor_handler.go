package handlers

import (
	"context"
	"net/http"

	"helpdesk/internal/metrics"
	"helpdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Sweeper 手动触发一次 SLA 巡检
type Sweeper interface {
	RunOnce(ctx context.Context) (services.SweepStats, error)
}

// MonitorHandler 巡检与指标处理器
type MonitorHandler struct {
	sweeper  Sweeper
	registry *metrics.Registry
	logger   *logrus.Logger
}

// NewMonitorHandler 创建巡检处理器
func NewMonitorHandler(sweeper Sweeper, registry *metrics.Registry, logger *logrus.Logger) *MonitorHandler {
	if registry == nil {
		registry = metrics.Default
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MonitorHandler{sweeper: sweeper, registry: registry, logger: logger}
}

// Sweep 立即执行一次巡检
// @Router /api/sla/sweep [post]
func (h *MonitorHandler) Sweep(c *gin.Context) {
	stats, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetMetrics 输出计数器；?format=prometheus 输出文本格式
// @Router /api/metrics [get]
func (h *MonitorHandler) GetMetrics(c *gin.Context) {
	snap := h.registry.Snapshot()
	if c.Query("format") == "prometheus" {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.Status(http.StatusOK)
		snap.WritePrometheus(c.Writer)
		return
	}
	c.JSON(http.StatusOK, snap)
}
