package handlers

import (
	"net/http"

	"helpdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TicketHandler 工单流转与 SLA 处理器
type TicketHandler struct {
	ticketService *services.TicketService
	logger        *logrus.Logger
}

// NewTicketHandler 创建工单处理器
func NewTicketHandler(ticketService *services.TicketService, logger *logrus.Logger) *TicketHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TicketHandler{ticketService: ticketService, logger: logger}
}

// PauseRequest 暂停 SLA 请求
type PauseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreateTicket 创建工单
// @Summary 创建工单
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param ticket body services.TicketCreateRequest true "工单信息"
// @Success 201 {object} models.Ticket
// @Failure 400 {object} ErrorResponse
// @Router /api/tickets [post]
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req services.TicketCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

// GetTicket 获取工单详情
// @Router /api/tickets/{id} [get]
func (h *TicketHandler) GetTicket(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ticket, err := h.ticketService.GetTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// Transition 变更工单状态
// @Router /api/tickets/{id}/transitions [post]
func (h *TicketHandler) Transition(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req services.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	ticket, err := h.ticketService.TransitionTicket(c.Request.Context(), id, req.Status, req.Comment)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// AllowedTransitions 可流转的目标状态
// @Router /api/tickets/{id}/transitions [get]
func (h *TicketHandler) AllowedTransitions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	targets, err := h.ticketService.AllowedTransitions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket_id": id, "allowed": targets})
}

// PauseSLA 暂停 SLA 计时
// @Router /api/tickets/{id}/sla/pause [post]
func (h *TicketHandler) PauseSLA(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	ticket, err := h.ticketService.PauseSLA(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "SLA paused", Data: ticket.SLA})
}

// ResumeSLA 恢复 SLA 计时
// @Router /api/tickets/{id}/sla/resume [post]
func (h *TicketHandler) ResumeSLA(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ticket, err := h.ticketService.ResumeSLA(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "SLA resumed", Data: ticket.SLA})
}

// GetSLA 实时 SLA 状态
// @Router /api/tickets/{id}/sla [get]
func (h *TicketHandler) GetSLA(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, err := h.ticketService.SLAStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RegisterTicketRoutes 注册工单路由
func RegisterTicketRoutes(r *gin.RouterGroup, handler *TicketHandler) {
	tickets := r.Group("/tickets")
	{
		tickets.POST("", handler.CreateTicket)
		tickets.GET("/:id", handler.GetTicket)
		tickets.POST("/:id/transitions", handler.Transition)
		tickets.GET("/:id/transitions", handler.AllowedTransitions)
		tickets.GET("/:id/sla", handler.GetSLA)
		tickets.POST("/:id/sla/pause", handler.PauseSLA)
		tickets.POST("/:id/sla/resume", handler.ResumeSLA)
	}
}
