package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logTimestampFormat = "2006-01-02 15:04:05"

// InitLogger 初始化全局日志
func InitLogger(cfg *Config) error {
	return ConfigureLogger(logrus.StandardLogger(), cfg.Log)
}

// ConfigureLogger 按配置设置日志级别、格式与输出
func ConfigureLogger(l *logrus.Logger, lc LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		l.Warnf("Invalid log level '%s', using 'info'", lc.Level)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(lc.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimestampFormat,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: logTimestampFormat,
		})
	}

	switch strings.ToLower(lc.Output) {
	case "file":
		w, err := rotateWriter(lc)
		if err != nil {
			return err
		}
		l.SetOutput(w)
	case "both":
		w, err := rotateWriter(lc)
		if err != nil {
			return err
		}
		l.SetOutput(io.MultiWriter(os.Stdout, w))
	default:
		l.SetOutput(os.Stdout)
	}

	l.SetReportCaller(true)

	l.Infof("Logger initialized - Level: %s, Format: %s, Output: %s", lc.Level, lc.Format, lc.Output)
	return nil
}

// rotateWriter 按大小/天数轮转的日志文件
func rotateWriter(lc LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   lc.FilePath,
		MaxSize:    lc.MaxSize,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAge,
		Compress:   lc.Compress,
		LocalTime:  true,
	}, nil
}
