package handlers

import (
	"net/http"

	"helpdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PriorityHandler 优先级评估处理器
type PriorityHandler struct {
	priorityService *services.PriorityService
	logger          *logrus.Logger
}

// NewPriorityHandler 创建优先级处理器
func NewPriorityHandler(priorityService *services.PriorityService, logger *logrus.Logger) *PriorityHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PriorityHandler{priorityService: priorityService, logger: logger}
}

// Preview 查看评分明细
// @Router /api/tickets/{id}/priority [get]
func (h *PriorityHandler) Preview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := h.priorityService.Preview(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Update 重新评分；?force=true 时即使等级不变也记录审计
// @Router /api/tickets/{id}/priority [post]
func (h *PriorityHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.priorityService.UpdatePriority(c.Request.Context(), id, c.Query("force") == "true")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// RecalculateAll 批量重算
// @Router /api/priority/recalculate [post]
func (h *PriorityHandler) RecalculateAll(c *gin.Context) {
	res, err := h.priorityService.RecalculateAll(c.Request.Context(), c.Query("force") == "true")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RegisterPriorityRoutes 注册优先级路由
func RegisterPriorityRoutes(r *gin.RouterGroup, handler *PriorityHandler) {
	r.GET("/tickets/:id/priority", handler.Preview)
	r.POST("/tickets/:id/priority", handler.Update)
	r.POST("/priority/recalculate", handler.RecalculateAll)
}
