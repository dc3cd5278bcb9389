package logger

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is the private key under which the logger is stored.
type contextKey struct{}

// ToContext returns a copy of ctx carrying the provided logger.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx or the global one.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return global
	}

	if l, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}

	return global
}

// WithName appends a name segment to the context logger.
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}

// WithKV adds a key-value pair to every message logged through the returned context.
func WithKV(ctx context.Context, key string, value any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(key, value))
}

// WithFields adds typed zap fields to the context logger.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		args = append(args, field)
	}

	return ToContext(ctx, FromContext(ctx).With(args...))
}
