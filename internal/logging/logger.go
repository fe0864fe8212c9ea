// Package logging provides the structured logger used throughout the
// service identification core. It wraps log/slog the same way the rest of
// the fleet does: a package-level default logger, level-gated Debug calls,
// and an instance-scoped logger so a multi-worker deployment can tell one
// worker's trace lines apart from another's.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
	once          sync.Once
)

// Initialize sets up the structured logger. Safe to call multiple times.
func Initialize() {
	once.Do(func() {
		level.Set(slog.LevelInfo)
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: false,
		})
		defaultLogger = slog.New(handler)
	})
}

// Get returns the default structured logger.
func Get() *slog.Logger {
	Initialize()
	return defaultLogger
}

// SetDebug toggles slog.LevelDebug on or off for the default logger. This
// backs the `debug` tunable (spec §6).
func SetDebug(enabled bool) {
	Initialize()
	if enabled {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// ForInstance returns a logger tagged with instance_id, so log lines from a
// given worker (spec §6 tunable `instance_id`) can be correlated even when
// several workers share stdout.
func ForInstance(instanceID int) *slog.Logger {
	return Get().With("instance_id", instanceID)
}

// Info logs an info level message.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs a warning level message.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs an error level message.
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Debug logs a debug level message.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

// DebugContext logs a debug level message bound to a context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	Get().DebugContext(ctx, msg, args...)
}

// With returns a logger with the given attributes attached.
func With(args ...any) *slog.Logger { return Get().With(args...) }
