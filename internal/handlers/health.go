package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Version 由构建参数注入
var Version = "dev"

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db     *gorm.DB
	redis  redis.UniversalClient
	hub    interface{ ClientCount() int }
	logger *logrus.Logger
}

// NewHealthHandler 创建健康检查处理器；redis 与 hub 可为 nil
func NewHealthHandler(db *gorm.DB, rdb redis.UniversalClient, hub interface{ ClientCount() int }) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, hub: hub, logger: logrus.StandardLogger()}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 依赖服务状态
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 进程信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// Health 健康检查端点；数据库不可用为 unhealthy，Redis 不可用为 degraded
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	dbInfo := h.checkDatabase(ctx)
	response.Services["database"] = dbInfo
	if dbInfo.Status != "healthy" {
		response.Status = "unhealthy"
	}

	if h.redis != nil {
		info := h.checkRedis(ctx)
		response.Services["redis"] = info
		if info.Status != "healthy" && response.Status == "healthy" {
			response.Status = "degraded"
		}
	}

	if h.hub != nil {
		response.Services["websocket"] = ServiceInfo{
			Status:  "healthy",
			Details: map[string]int{"subscribers": h.hub.ClientCount()},
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Ready 就绪检查，仅检查数据库
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	info := h.checkDatabase(ctx)
	ready := info.Status == "healthy"
	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"ready":     ready,
		"timestamp": time.Now(),
		"services":  map[string]string{"database": info.Status},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceInfo {
	start := time.Now()
	if h.db == nil {
		return ServiceInfo{Status: "unhealthy", Error: "database connection not initialized"}
	}
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.logger.Warnf("Database health check failed: %v", err)
		return ServiceInfo{Status: "unhealthy", Error: err.Error(), Latency: time.Since(start).String()}
	}
	return ServiceInfo{
		Status:  "healthy",
		Latency: time.Since(start).String(),
		Details: map[string]interface{}{"driver": h.db.Dialector.Name()},
	}
}

func (h *HealthHandler) checkRedis(ctx context.Context) ServiceInfo {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.Warnf("Redis health check failed: %v", err)
		return ServiceInfo{Status: "unhealthy", Error: err.Error(), Latency: time.Since(start).String()}
	}
	return ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
}
