// Package logging provides structured logging for the device-node symlink manager.
//
// This package uses Go's standard library log/slog for structured, leveled logging.
// It supports both text and JSON output formats, and integrates with context.Context
// for request-scoped logging.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ctxKey is the context key for the logger.
type ctxKey struct{}

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
	// loggerMu protects defaultLogger.
	loggerMu sync.RWMutex
)

func init() {
	// Initialize with a default logger (text to stderr, info level)
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds the logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level slog.Level
	// Format is the output format ("text" or "json").
	Format string
	// Output is the log output destination.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// NewLogger creates a new structured logger with the given configuration.
func NewLogger(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

// SetDefault sets the default global logger.
func SetDefault(logger *slog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the default global logger.
func Default() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithDevice returns a logger with device-id context.
func WithDevice(logger *slog.Logger, deviceID string) *slog.Logger {
	return logger.With(slog.String("device_id", deviceID))
}

// WithOperation returns a logger with operation context.
func WithOperation(logger *slog.Logger, op string) *slog.Logger {
	return logger.With(slog.String("operation", op))
}

// WithStableName returns a logger with stable-name context.
func WithStableName(logger *slog.Logger, stableName string) *slog.Logger {
	return logger.With(slog.String("stable_name", stableName))
}

// WithClaimDir returns a logger with claim-directory context.
func WithClaimDir(logger *slog.Logger, claimDir string) *slog.Logger {
	return logger.With(slog.String("claim_dir", claimDir))
}

// stringer is satisfied by the small value types the convergence loop and
// the atomic writer pass around (linkfs.Outcome, errors.Kind, ...). Logging
// depends on none of those packages directly — they depend on logging — so
// this keeps the dependency edge one-way while still letting their values
// flow into a structured field by name instead of by %v formatting.
type stringer interface {
	String() string
}

// WithOutcome tags a logger with the result of an atomic symlink write
// (created, preserved, replaced), letting a single log line at the call
// site report what actually happened on disk without string-building.
func WithOutcome(logger *slog.Logger, outcome stringer) *slog.Logger {
	return logger.With(slog.String("outcome", outcome.String()))
}

// WithAttempt tags a logger with the convergence loop's current position
// against its retry budget, so a line logged mid-loop or on exhaustion
// shows how far the bounded retry got before giving up or succeeding.
func WithAttempt(logger *slog.Logger, attempt, budget int) *slog.Logger {
	return logger.With(slog.Int("attempt", attempt), slog.Int("retry_budget", budget))
}

// WithClaimState tags a logger with the claim index state the convergence
// loop is comparing across a write: how many device ids currently hold a
// marker under the stable name's claim dir, and whether the dir exists at
// all (a dir that's gone is a different case from one with zero markers —
// the former means no marker was ever written or the last claimant's
// removal also removed the dir, the latter is untaken after arbitration
// ran).
func WithClaimState(logger *slog.Logger, claimDir string, exists bool, markerCount int) *slog.Logger {
	return logger.With(
		slog.String("claim_dir", claimDir),
		slog.Bool("claim_dir_exists", exists),
		slog.Int("claim_count", markerCount),
	)
}

// ContextWithLogger returns a new context with the logger attached.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger from context.
// If no logger is found, returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// ParseLevel parses a log level string and returns the corresponding slog.Level.
// Valid values: "debug", "info", "warn", "error".
// Returns slog.LevelInfo for invalid values.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper functions for common log patterns.

// Info logs an info message using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// InfoContext logs an info message using the logger from context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message using the logger from context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message using the logger from context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}

// DebugContext logs a debug message using the logger from context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}
