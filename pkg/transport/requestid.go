package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/openconduit/conduit/pkg/api"
)

// RequestID returns middleware that guarantees every request carries a
// request ID in its context. An ID already present (the HTTP adapter sets
// one from the X-Request-ID header) is kept; otherwise a fresh UUID is
// assigned. Retrieve it with RequestIDFromContext.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.Chat(ctx, req, w)
		})
	}
}
