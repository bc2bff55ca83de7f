package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"helpdesk/internal/repository"
	"helpdesk/internal/services"
	"helpdesk/internal/sla"
	"helpdesk/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// parseID 解析路径中的工单 ID
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_TICKET_ID",
			Message: "ID must be a valid number",
		})
		return 0, false
	}
	return uint(id), true
}

// respondError 将领域错误映射为 HTTP 状态码
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error(), Code: status})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrTicketNotFound):
		return http.StatusNotFound, "TICKET_NOT_FOUND"
	case errors.Is(err, workflow.ErrMissingActor):
		return http.StatusUnauthorized, "MISSING_ACTOR"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "INVALID_TRANSITION"
	case errors.Is(err, sla.ErrPreconditionFailed):
		return http.StatusConflict, "PRECONDITION_FAILED"
	case errors.Is(err, services.ErrConflictingState):
		return http.StatusConflict, "CONFLICTING_STATE"
	case errors.Is(err, services.ErrSweepInProgress):
		return http.StatusConflict, "SWEEP_IN_PROGRESS"
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
