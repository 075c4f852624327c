// Package logger decorates slog handlers with request/job context.
package logger

import (
	"context"
	"log/slog"

	"longrun/internal/middleware"
)

// ContextHandler adds the correlation ID from the context to every
// record, so InfoContext/ErrorContext callers never pass it manually.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
