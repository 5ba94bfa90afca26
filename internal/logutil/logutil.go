package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
)

// New returns a JSON logger on stdout at the given level ("debug", "info", "warn", "error").
func New(level string) logr.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) logr.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return logr.FromSlogHandler(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// LogAndWrapErr logs an error with context fields and wraps it with a message.
// It returns a wrapped error (with %w) so errors.Is / errors.As still work.
func LogAndWrapErr(logger logr.Logger, msg string, err error, keysAndValues ...any) error {
	if err == nil {
		return nil
	}
	logger.Error(err, msg, keysAndValues...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DebugAndWrapErr is LogAndWrapErr at debug verbosity.
func DebugAndWrapErr(logger logr.Logger, msg string, err error, keysAndValues ...any) error {
	if err == nil {
		return nil
	}
	logger.V(1).Info(msg, append(keysAndValues, "err", err.Error())...)
	return fmt.Errorf("%s: %w", msg, err)
}
