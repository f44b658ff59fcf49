// Package requestctx carries per-request identity and logging through context.
package requestctx

import (
	"context"

	"github.com/sirupsen/logrus"
)

type userIDContextKey struct{}

type loggerContextKey struct{}

// WithUserID stores the authenticated user identifier in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the authenticated user identifier stored in context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDContextKey{}).(string)
	return value
}

// WithLogger stores a request-scoped log entry in context.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// Logger returns the request-scoped log entry, falling back to fallback and
// then to the standard logger.
func Logger(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(logrus.FieldLogger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return logrus.StandardLogger()
}
