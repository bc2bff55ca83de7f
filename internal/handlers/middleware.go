package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"helpdesk/internal/config"
	"helpdesk/internal/services"

	"github.com/gin-gonic/gin"
)

// ActorHeader 携带操作人 ID 的请求头
const ActorHeader = "X-Actor-ID"

// ActorMiddleware 将 X-Actor-ID 写入请求 context；缺失时由服务层拒绝需要操作人的请求
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(ActorHeader))
		if raw == "" {
			c.Next()
			return
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error:   "INVALID_ACTOR",
				Message: ActorHeader + " must be a positive integer",
			})
			return
		}
		c.Request = c.Request.WithContext(services.WithActor(c.Request.Context(), uint(id)))
		c.Next()
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := "*"
	if cfg.Enabled && len(cfg.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.AllowedOrigins, ", ")
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+ActorHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
