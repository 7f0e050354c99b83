package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	fieldsKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithFields attaches fields that every logger taken from the returned
// context carries, after any fields already attached.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	prev := fieldsFrom(ctx)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey, merged)
}

func fieldsFrom(ctx context.Context) []zap.Field {
	fields, _ := ctx.Value(fieldsKey).([]zap.Field)
	return fields
}

// FromCtx returns the global logger with the request id and any fields
// attached to ctx.
func FromCtx(ctx context.Context) *zap.Logger {
	l := L()
	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With(zap.String("request_id", reqID))
	}
	if fields := fieldsFrom(ctx); len(fields) > 0 {
		l = l.With(fields...)
	}
	return l
}
