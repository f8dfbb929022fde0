// Package slogutil builds the process-wide structured logger.
package slogutil

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aurcache/aurcache/internal/config"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New builds a *slog.Logger that writes to stdout and, if cfg.File is set,
// additionally to a rotated log file.
func New(cfg config.LogConfig) *slog.Logger {
	var writer io.Writer = os.Stdout

	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		writer = io.MultiWriter(os.Stdout, fileWriter)
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
