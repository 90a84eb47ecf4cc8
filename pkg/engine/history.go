package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/storage"
)

// resolveMessages builds the full message list for the provider: the
// instructions system message, then stored conversation history when the
// request references a conversation, then the request messages.
//
// An unknown conversation ID resolves to empty history. The conversation
// is created on the first append, so a client can pick its own ID for a
// new thread.
func (e *Engine) resolveMessages(ctx context.Context, req *api.ChatRequest) ([]api.Message, error) {
	var messages []api.Message

	if req.Instructions != "" {
		messages = append(messages, api.Message{
			Role:    api.RoleSystem,
			Content: req.Instructions,
		})
	}

	if req.Conversation != "" && e.store != nil {
		conv, err := e.store.GetConversation(ctx, req.Conversation)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// New conversation; nothing to prepend.
		case err != nil:
			return nil, err
		default:
			messages = append(messages, conv.Messages...)
		}
	}

	return append(messages, req.Messages...), nil
}

// persistExchange appends the completed turn to the conversation: the
// request's new messages, any intermediate tool-call traffic, and the
// final assistant message. Persistence failures are logged, not surfaced;
// the response has already been produced.
func (e *Engine) persistExchange(ctx context.Context, req *api.ChatRequest, resp *api.ChatResponse) {
	if req.Conversation == "" || e.store == nil {
		return
	}

	exchange := make([]api.Message, 0, len(req.Messages)+len(resp.History)+1)
	exchange = append(exchange, req.Messages...)
	exchange = append(exchange, resp.History...)
	exchange = append(exchange, resp.Message)

	if err := e.store.AppendMessages(ctx, req.Conversation, req.Model, exchange); err != nil {
		slog.Warn("failed to persist conversation",
			"conversation", req.Conversation,
			"error", err,
		)
	}
}
