package xlog

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// FromContext returns the *Logger from context, or a Logger wrapping slog.Default() if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return &Logger{Logger: slog.Default()}
}

// WithContext stores the *Logger in context.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}
