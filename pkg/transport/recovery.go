package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/openconduit/conduit/pkg/api"
)

// Recovery returns middleware that turns a handler panic into a server
// error response instead of tearing down the connection. The panic value
// and stack are logged; the message sent to the client carries neither.
func Recovery() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in chat handler",
						"panic", fmt.Sprint(r),
						"request_id", RequestIDFromContext(ctx),
						"stack", string(debug.Stack()),
					)
					retErr = api.NewServerError("internal server error")
				}
			}()
			return next.Chat(ctx, req, w)
		})
	}
}
