// Package logger configures the application's structured logger.
//
// It uses the standard library's log/slog with a JSON handler by default and a
// text handler for local development.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Antonioedwardsd/devlab/internal/config"
)

// Setup builds a logger writing to stdout, installs it as the slog default and
// returns it.
func Setup(cfg config.LogConfig) (*slog.Logger, error) {
	logger := New(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger, nil
}

// New builds a logger writing to w. Unknown levels fall back to info with a
// warning written to the same destination.
func New(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, ok := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if !ok {
		logger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}
	return logger
}

// ParseLevel maps a case-insensitive level name to a slog level. The second
// result is false when the name is not recognised.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
