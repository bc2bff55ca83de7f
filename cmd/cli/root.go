package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"helpdesk/internal/app"
	"helpdesk/internal/config"
	"helpdesk/internal/observability"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "helpdeskctl",
	Short: "Helpdesk SLA and priority engine",
	Long: `helpdeskctl runs the helpdesk API with its SLA monitor, and offers
one-shot maintenance commands (sweep, reprioritize, migrate).`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
}

func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HELPDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := config.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// bootstrap 加载配置、初始化追踪并组装应用；调用方负责执行返回的清理函数
func bootstrap(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logrus.StandardLogger()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		log.Warnf("init tracing: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Warnf("close: %v", err)
		}
		_ = shutdownTracing(context.Background())
	}
	return a, cleanup, nil
}
