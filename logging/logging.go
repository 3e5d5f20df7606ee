package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lavraseats/lavraseats/config"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger. Every record carries the service name.
func New(w io.Writer, service string, cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}

// Setup installs the logger as the slog default and returns it.
func Setup(service string, cfg config.Log) *slog.Logger {
	logger := New(os.Stdout, service, cfg)
	slog.SetDefault(logger)

	return logger
}
