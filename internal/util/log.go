// Package util provides shared helpers for logging, retries and rate
// limiting.
package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unrecognised strings map to info.
func ParseLevel(level string) slog.Level {
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

// NewLogger creates a structured logger on stdout at the given level.
// format "text" selects the text handler; anything else selects JSON.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level, format)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewDailyFileLogger logs to stdout and to /tmp/<name>-YYYY-MM-DD.log. The
// returned closer closes the file.
func NewDailyFileLogger(name, level string) (*slog.Logger, io.Closer, string, error) {
	path := fmt.Sprintf("/tmp/%s-%s.log", name, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening log file: %w", err)
	}
	w := io.MultiWriter(os.Stdout, f)
	return NewLoggerTo(w, level, "text"), f, path, nil
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
