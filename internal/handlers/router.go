package handlers

import (
	"helpdesk/internal/config"
	"helpdesk/internal/metrics"
	"helpdesk/internal/notify"
	"helpdesk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// RouterDeps HTTP 层依赖；Hub 与 Redis 可为 nil
type RouterDeps struct {
	Config   *config.Config
	Tickets  *services.TicketService
	Priority *services.PriorityService
	Sweeper  Sweeper
	Hub      *notify.Hub
	Metrics  *metrics.Registry
	DB       *gorm.DB
	Redis    redis.UniversalClient
	Logger   *logrus.Logger
}

// NewRouter 组装 gin 路由
func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(d.Config.Security.CORS))
	if d.Config.Monitoring.Tracing.Enabled {
		svc := d.Config.Monitoring.Tracing.ServiceName
		if svc == "" {
			svc = "helpdesk"
		}
		r.Use(otelgin.Middleware(svc))
	}

	var hub interface{ ClientCount() int }
	if d.Hub != nil {
		hub = d.Hub
	}
	health := NewHealthHandler(d.DB, d.Redis, hub)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)

	api := r.Group("/api")
	api.Use(ActorMiddleware())

	RegisterTicketRoutes(api, NewTicketHandler(d.Tickets, logger))
	RegisterPriorityRoutes(api, NewPriorityHandler(d.Priority, logger))

	monitor := NewMonitorHandler(d.Sweeper, d.Metrics, logger)
	api.POST("/sla/sweep", monitor.Sweep)
	api.GET("/metrics", monitor.GetMetrics)

	if d.Hub != nil {
		api.GET("/ws/events", d.Hub.HandleWebSocket)
	}
	return r
}
