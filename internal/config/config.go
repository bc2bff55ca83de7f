package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring" yaml:"monitoring"`
	Security      SecurityConfig      `mapstructure:"security" yaml:"security"`
	BusinessHours BusinessHoursConfig `mapstructure:"business_hours" yaml:"business_hours"`
	SLA           SLAConfig           `mapstructure:"sla" yaml:"sla"`
	Monitor       MonitorConfig       `mapstructure:"monitor" yaml:"monitor"`
	Priority      PriorityConfig      `mapstructure:"priority" yaml:"priority"`
	Notification  NotificationConfig  `mapstructure:"notification" yaml:"notification"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // postgres, sqlite
	Path            string        `mapstructure:"path" yaml:"path"`     // sqlite 文件路径
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	SSLMode         string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

// DSN 构建 Postgres 连接串
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, sslMode,
	)
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Password     string `mapstructure:"password" yaml:"password"`
	DB           int    `mapstructure:"db" yaml:"db"`
	PoolSize     int    `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
}

// Addr host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	Output     string `mapstructure:"output" yaml:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress" yaml:"compress"`       // compress backup files
}

type MonitoringConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`         // OTLP gRPC 端点，例如 http://otel-collector:4317
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`         // 是否使用明文（本地/开发）
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"` // 缺省使用 "helpdesk"
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors" yaml:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// BusinessHoursConfig 工作时间日历配置
type BusinessHoursConfig struct {
	StartHour   int      `mapstructure:"start_hour" yaml:"start_hour"`
	EndHour     int      `mapstructure:"end_hour" yaml:"end_hour"`
	WorkingDays []string `mapstructure:"working_days" yaml:"working_days"` // monday..sunday 或 mon..sun
	Timezone    string   `mapstructure:"timezone" yaml:"timezone"`
	Holidays    []string `mapstructure:"holidays" yaml:"holidays"` // MM-DD，每年重复
}

// SLAConfig SLA 预算配置
type SLAConfig struct {
	DefaultHours     float64                       `mapstructure:"default_hours" yaml:"default_hours"`
	AtRiskRatio      float64                       `mapstructure:"at_risk_ratio" yaml:"at_risk_ratio"`
	UseBusinessHours bool                          `mapstructure:"use_business_hours" yaml:"use_business_hours"`
	Matrix           map[string]map[string]float64 `mapstructure:"matrix" yaml:"matrix"` // priority -> category -> hours
}

// MonitorConfig SLA 巡检配置
type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Schedule      string        `mapstructure:"schedule" yaml:"schedule"` // cron 表达式或 @every 5m
	LockTTL       time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown" yaml:"alert_cooldown"`
}

// PriorityConfig 优先级评分配置
type PriorityConfig struct {
	Weights          PriorityWeights `mapstructure:"weights" yaml:"weights"`
	CriticalKeywords []string        `mapstructure:"critical_keywords" yaml:"critical_keywords"`
	UrgentKeywords   []string        `mapstructure:"urgent_keywords" yaml:"urgent_keywords"`
	HistoryWindow    time.Duration   `mapstructure:"history_window" yaml:"history_window"`
}

type PriorityWeights struct {
	WaitingTime float64 `mapstructure:"waiting_time" yaml:"waiting_time"`
	SLAStatus   float64 `mapstructure:"sla_status" yaml:"sla_status"`
	ReopenCount float64 `mapstructure:"reopen_count" yaml:"reopen_count"`
	Keywords    float64 `mapstructure:"keywords" yaml:"keywords"`
	UserHistory float64 `mapstructure:"user_history" yaml:"user_history"`
}

// Sum 权重之和
func (w PriorityWeights) Sum() float64 {
	return w.WaitingTime + w.SLAStatus + w.ReopenCount + w.Keywords + w.UserHistory
}

// NotificationConfig 通知渠道配置
type NotificationConfig struct {
	Log       bool                  `mapstructure:"log" yaml:"log"`
	Telegram  TelegramConfig        `mapstructure:"telegram" yaml:"telegram"`
	Redis     RedisPubSubConfig     `mapstructure:"redis" yaml:"redis"`
	WebSocket WebSocketNotifyConfig `mapstructure:"websocket" yaml:"websocket"`
}

type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	BotToken string        `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string        `mapstructure:"chat_id" yaml:"chat_id"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RedisPubSubConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

type WebSocketNotifyConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load 在默认配置之上合并 viper 读取的配置并校验
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom 从指定 viper 实例加载配置
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ZeroFields = true
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Path:            "helpdesk.db",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "helpdesk",
			SSLMode:         "disable",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
			LogLevel:        "warn",
		},
		Redis: RedisConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/helpdesk.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "helpdesk",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
		},
		BusinessHours: BusinessHoursConfig{
			StartHour:   9,
			EndHour:     18,
			WorkingDays: []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
			Timezone:    "UTC",
			Holidays:    []string{"01-01", "12-25"},
		},
		SLA: SLAConfig{
			DefaultHours:     48,
			AtRiskRatio:      0.2,
			UseBusinessHours: true,
			Matrix:           DefaultSLAMatrix(),
		},
		Monitor: MonitorConfig{
			Enabled:       true,
			Schedule:      "@every 5m",
			LockTTL:       4 * time.Minute,
			AlertCooldown: 24 * time.Hour,
		},
		Priority: PriorityConfig{
			Weights: PriorityWeights{
				WaitingTime: 0.30,
				SLAStatus:   0.25,
				ReopenCount: 0.15,
				Keywords:    0.15,
				UserHistory: 0.15,
			},
			CriticalKeywords: []string{
				"outage", "down", "data loss", "security", "breach", "production", "not working", "crash",
			},
			UrgentKeywords: []string{
				"urgent", "asap", "error", "failed", "broken", "cannot", "blocked", "slow",
			},
			HistoryWindow: 30 * 24 * time.Hour,
		},
		Notification: NotificationConfig{
			Log: true,
			Telegram: TelegramConfig{
				Enabled: false,
				BaseURL: "https://api.telegram.org",
				Timeout: 10 * time.Second,
			},
			Redis: RedisPubSubConfig{
				Enabled: false,
				Channel: "helpdesk:sla-events",
			},
			WebSocket: WebSocketNotifyConfig{
				Enabled: true,
			},
		},
	}
}

// DefaultSLAMatrix 默认 SLA 矩阵（小时）
func DefaultSLAMatrix() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"urgent": {"Hardware": 2, "Software": 4, "Network": 1, "Access": 1, "Other": 4},
		"high":   {"Hardware": 8, "Software": 12, "Network": 4, "Access": 4, "Other": 16},
		"medium": {"Hardware": 24, "Software": 36, "Network": 12, "Access": 8, "Other": 48},
		"low":    {"Hardware": 72, "Software": 96, "Network": 48, "Access": 24, "Other": 96},
	}
}
