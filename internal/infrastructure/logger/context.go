package logger

import (
	"context"

	"github.com/erp/custody/internal/domain/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the attached logger, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithRequestID stores the request id and tags the context logger with it
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("request_id", requestID)))
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithScope tags the context logger with the caller's tenant, branch and user
func WithScope(ctx context.Context, scope shared.Scope) context.Context {
	return WithContext(ctx, FromContext(ctx).With(ScopeFields(scope)...))
}

// ScopeFields renders a scope as log fields
func ScopeFields(scope shared.Scope) []zap.Field {
	fields := []zap.Field{zap.String("tenant_id", scope.TenantID.String())}
	if scope.BranchID != nil {
		fields = append(fields, zap.String("branch_id", scope.BranchID.String()))
	}
	if scope.UserID != nil {
		fields = append(fields, zap.String("user_id", scope.UserID.String()))
	}
	return fields
}

// L returns the context logger with trace_id and span_id of the active span.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	return WithTrace(ctx, FromContext(ctx))
}

// WithTrace adds the active span's ids to l; without a valid span l is returned as is
func WithTrace(ctx context.Context, l *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
