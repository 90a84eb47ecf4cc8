package provider

import (
	"context"

	"github.com/openconduit/conduit/pkg/api"
)

// Provider abstracts an LLM inference backend. Each adapter handles its own
// wire protocol (OpenAI Chat Completions, Anthropic Messages, Ollama)
// internally and exposes only the normalized schema.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// Event values and is closed by the provider when the stream completes
	// or errors. An Event with Type EventError is always the last event
	// on a failed stream.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]api.ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
