package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/openconduit/conduit/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// chat request. The log entry includes model, streaming mode, duration,
// request ID (from context), and whether the request succeeded or failed.
//
// HTTP-level details (method, path, status) are logged by the adapter;
// this middleware sees only the normalized request.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.Chat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("model", req.Model),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat completed", attrs...)
			}

			return err
		})
	}
}
