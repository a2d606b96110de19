package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Dungyy/Gerz-platform-sub000/pkg/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Logger *logrus.Logger
	mu     sync.Mutex
)

// Initialize 初始化日志
func Initialize(cfg *config.Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.Log.FilePath != "" {
		logDir := filepath.Dir(cfg.Log.FilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}

		rotateLogger := &lumberjack.Logger{
			Filename:   cfg.Log.FilePath,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		}

		// 同时输出到文件和控制台
		l.SetOutput(io.MultiWriter(os.Stdout, rotateLogger))
	}

	mu.Lock()
	Logger = l
	mu.Unlock()
	return nil
}

// GetLogger 获取日志实例，未初始化时返回一个输出到stderr的默认实例
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if Logger == nil {
		Logger = logrus.New()
	}
	return Logger
}
