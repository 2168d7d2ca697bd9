package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger initializes the global logger based on configuration
func InitLogger(cfg LoggingConfig) *slog.Logger {
	return initLogger(cfg, os.Stdout)
}

func initLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
