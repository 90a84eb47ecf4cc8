package transport

import (
	"context"

	"github.com/openconduit/conduit/pkg/api"
)

// ChatHandler handles the core chat operation. The implementation receives
// a request and writes the result (streaming events or a complete response)
// to the ResponseWriter.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function as
// a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After  string // Cursor: return items after this ID.
	Before string // Cursor: return items before this ID.
	Limit  int    // Maximum number of items to return (default 20, max 100).
	Model  string // Filter conversations by model name.
	Order  string // Sort order: "asc" or "desc" (default "desc").
}

// ConversationList holds a paginated list of conversations.
type ConversationList struct {
	Object  string              `json:"object"`
	Data    []*api.Conversation `json:"data"`
	HasMore bool                `json:"has_more"`
	FirstID string              `json:"first_id"`
	LastID  string              `json:"last_id"`
}

// ConversationStore handles persistence, retrieval, and deletion of
// conversation histories. Only configured in stateful deployments.
type ConversationStore interface {
	// AppendMessages adds messages to a conversation, creating it on
	// first use. The model is recorded on creation.
	AppendMessages(ctx context.Context, id, model string, messages []api.Message) error

	// GetConversation retrieves a conversation by ID. Returns
	// storage.ErrNotFound if it does not exist or has been deleted.
	GetConversation(ctx context.Context, id string) (*api.Conversation, error)

	// ListConversations returns a paginated list of conversations.
	// Results are filtered by tenant (when present in context) and
	// optionally by model. Supports cursor-based pagination and ordering.
	ListConversations(ctx context.Context, opts ListOptions) (*ConversationList, error)

	// DeleteConversation soft-deletes a conversation by ID.
	DeleteConversation(ctx context.Context, id string) error

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// ResponseWriter abstracts streaming and non-streaming output for the
// handler. The transport layer creates a ResponseWriter per request.
//
// WriteEvent and WriteResponse are mutually exclusive on a single writer
// instance. Calling WriteEvent after WriteResponse (or vice versa) returns
// an error, as does WriteEvent after a terminal event (chat.completed,
// chat.failed, chat.incomplete, or chat.cancelled).
type ResponseWriter interface {
	// WriteEvent sends a single streaming event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteResponse sends a complete non-streaming response.
	WriteResponse(ctx context.Context, resp *api.ChatResponse) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
