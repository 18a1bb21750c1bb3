package platform

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

// ErrInvalidLogLevel is returned for an unknown log level name.
var ErrInvalidLogLevel = errors.New("server.log_level must be debug, info, warn or error")

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, ErrInvalidLogLevel
}

// NewLogger builds the process logger. Output goes to w, which is stderr
// in practice since stdout carries the stdio transport.
func NewLogger(cfg ServerConfig, w io.Writer) *slog.Logger {
	level, _ := ParseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
