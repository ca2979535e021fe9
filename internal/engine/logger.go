package engine

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger. Engine roles (creator, refresher, poller,
// worker N) each get a child logger via WithRole; per-slot logging
// uses WithSlot.
type Logger struct {
	*slog.Logger
}

// NewLogger builds a Logger from a LoggingConfig, selecting a JSON or
// text handler.
func NewLogger(cfg LoggingConfig) *Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithRole returns a logger tagged with the engine role name (creator,
// refresher, poller, work[N]), mirroring the original's pthread names.
func (l *Logger) WithRole(role string) *Logger {
	return &Logger{Logger: l.Logger.With("role", role)}
}

// WithSlot returns a logger tagged with a connection table slot index.
func (l *Logger) WithSlot(slot int) *Logger {
	return &Logger{Logger: l.Logger.With("slot", slot)}
}

// InfoContext, WarnContext, ErrorContext delegate to slog, accepting a
// context.Context for call sites that already carry one.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, args...)
}

func parseLogLevel(level string) slog.Level {
	switch level {
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
