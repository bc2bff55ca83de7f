package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"helpdesk/internal/cache"
	"helpdesk/internal/config"
	"helpdesk/internal/handlers"
	"helpdesk/internal/metrics"
	"helpdesk/internal/models"
	"helpdesk/internal/notify"
	"helpdesk/internal/priority"
	"helpdesk/internal/repository"
	"helpdesk/internal/services"
	"helpdesk/internal/sla"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

// App 组装好的运行时依赖
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	DB       *gorm.DB
	Redis    redis.UniversalClient
	Store    repository.TicketStore
	Clock    *sla.Clock
	Hub      *notify.Hub
	Metrics  *metrics.Registry
	Tickets  *services.TicketService
	Priority *services.PriorityService
	Monitor  *services.SLAMonitor

	hubCancel context.CancelFunc
}

// New 打开数据库与 Redis，并构建全部服务
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	db, err := OpenDatabase(cfg.Database, cfg.Monitoring.Tracing.Enabled)
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg, log, db, connectRedis(ctx, cfg.Redis, log))
}

func build(ctx context.Context, cfg *config.Config, log *logrus.Logger, db *gorm.DB, rdb redis.UniversalClient) (*App, error) {
	cal, err := sla.NewBusinessCalendar(cfg.BusinessHours)
	if err != nil {
		return nil, err
	}
	clock := sla.NewClock(cal, sla.WithAtRiskRatio(cfg.SLA.AtRiskRatio))

	a := &App{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Redis:   rdb,
		Store:   repository.NewGormTicketStore(db),
		Clock:   clock,
		Metrics: metrics.Default,
	}

	var sinks notify.Multi
	if cfg.Notification.Log {
		sinks = append(sinks, notify.NewLogSink(log))
	}
	if cfg.Notification.Telegram.Enabled {
		sinks = append(sinks, notify.NewTelegramSink(cfg.Notification.Telegram))
	}
	if cfg.Notification.Redis.Enabled {
		if rdb != nil {
			sinks = append(sinks, notify.NewRedisSink(rdb, cfg.Notification.Redis.Channel))
		} else {
			log.Warn("Redis notifications enabled but Redis is unavailable, skipping")
		}
	}
	if cfg.Notification.WebSocket.Enabled {
		a.Hub = notify.NewHub(log)
		hubCtx, cancel := context.WithCancel(ctx)
		a.hubCancel = cancel
		go a.Hub.Run(hubCtx)
		sinks = append(sinks, a.Hub)
	}

	opts := []services.Option{services.WithMetrics(a.Metrics)}
	a.Tickets = services.NewTicketService(a.Store, clock, cfg.SLA, services.ContextActorResolver{}, sinks, log, opts...)
	a.Priority = services.NewPriorityService(a.Store, priority.NewScorer(cfg.Priority), cfg.Priority, sinks, log, opts...)

	monOpts := []services.MonitorOption{
		services.WithSchedule(cfg.Monitor.Schedule),
		services.WithLocation(cal.Location()),
		services.WithMonitorMetrics(a.Metrics),
	}
	if rdb != nil {
		monOpts = append(monOpts,
			services.WithSweepLock(cache.NewSweepLock(rdb, cfg.Monitor.LockTTL)),
			services.WithAlertGate(cache.NewAlertGate(rdb, cfg.Monitor.AlertCooldown)),
		)
	}
	a.Monitor = services.NewSLAMonitor(a.Store, clock, sinks, log, monOpts...)
	return a, nil
}

// OpenDatabase 按驱动打开数据库
func OpenDatabase(dc config.DatabaseConfig, tracing bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dc.Driver {
	case "sqlite":
		dialector = sqlite.Open(dc.Path)
	case "postgres", "":
		dialector = postgres.Open(dc.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dc.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(gormLogLevel(dc.LogLevel))})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if tracing {
		if err := db.Use(gormtracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("gorm tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dc.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if dc.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(dc.MaxOpenConns)
		}
		if dc.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(dc.MaxIdleConns)
		}
		if dc.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(dc.ConnMaxLifetime)
		}
	}
	return db, nil
}

func gormLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Migrate 迁移表结构并补充组合索引
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Ticket{}, &models.TicketStatusHistory{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_tickets_status_created ON tickets(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_tickets_sla_active ON tickets(sla_is_paused, sla_deadline)",
		"CREATE INDEX IF NOT EXISTS idx_tickets_requester_created ON tickets(requester_id, created_at)",
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func connectRedis(ctx context.Context, rc config.RedisConfig, log *logrus.Logger) redis.UniversalClient {
	if !rc.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis unavailable at %s, running without distributed lock: %v", rc.Addr(), err)
		_ = client.Close()
		return nil
	}
	return client
}

// Router 构建 HTTP 路由
func (a *App) Router() *gin.Engine {
	return handlers.NewRouter(handlers.RouterDeps{
		Config:   a.Config,
		Tickets:  a.Tickets,
		Priority: a.Priority,
		Sweeper:  a.Monitor,
		Hub:      a.Hub,
		Metrics:  a.Metrics,
		DB:       a.DB,
		Redis:    a.Redis,
		Logger:   a.Logger,
	})
}

// Close 停止后台任务并释放连接
func (a *App) Close() error {
	a.Monitor.Stop()
	if a.hubCancel != nil {
		a.hubCancel()
	}
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
