// Package logging 结构化日志
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json or text
	Output    string `json:"output"` // stdout, stderr, or file path
	Component string `json:"component"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", cfg.Component)),
		component: cfg.Component,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// WithUserID 添加账号 ID
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("user_id", userID)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}
