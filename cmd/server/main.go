package main

import (
	"context"
	"os/signal"
	"syscall"

	"helpdesk/internal/app"
	"helpdesk/internal/config"
	"helpdesk/internal/observability"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	_ = godotenv.Load()

	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if err := app.Migrate(a.DB); err != nil {
		appLogger.Fatalf("Failed to migrate: %v", err)
	}

	if err := a.Serve(ctx); err != nil {
		appLogger.Errorf("server: %v", err)
	}
}
