package provider

import (
	"github.com/openconduit/conduit/pkg/api"
)

// Capabilities declares what features a backend supports. Used by the
// engine for early request validation.
type Capabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// Vision indicates whether the provider supports image inputs.
	Vision bool

	// Embeddings indicates whether the backend also serves an embeddings endpoint.
	Embeddings bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int

	// SupportedModels lists models this provider can serve.
	// Empty means "ask ListModels()".
	SupportedModels []string
}

// Request is the backend-facing request. It carries only what the backend
// needs, stripped of transport and storage concerns: the engine has already
// resolved conversation history into Messages and filtered tools.
type Request struct {
	Model            string
	Messages         []api.Message
	Tools            []api.ToolDefinition
	ToolChoice       *api.ToolChoice
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	Stop             []string
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stream           bool
	IncludeUsage     bool
	User             string

	// Extra holds provider-specific parameters that don't map to
	// standard fields. Adapters merge them into the outgoing body.
	Extra map[string]any
}

// Response is the backend's complete non-streaming response, already
// translated to the normalized schema.
type Response struct {
	ID           string
	Model        string
	Created      int64
	Message      api.Message
	FinishReason api.FinishReason
	Usage        api.Usage
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventTextDelta     EventType = iota // incremental text content
	EventToolCallDelta                  // incremental tool call arguments
	EventToolCallDone                   // tool call arguments complete
	EventDone                           // stream finished
	EventError                          // stream error
)

// Event is a single streaming event from the backend.
type Event struct {
	// Type indicates what kind of event this is.
	Type EventType

	// Delta contains incremental text or argument data.
	Delta string

	// ToolCallIndex identifies which tool call this event relates to.
	ToolCallIndex int

	// ToolCallID is the identifier for the tool call.
	ToolCallID string

	// FunctionName is the function name (populated on the first event
	// of a tool call).
	FunctionName string

	// FinishReason is populated on the EventDone event.
	FinishReason api.FinishReason

	// Usage is populated on the final event when the backend reports it.
	Usage *api.Usage

	// ID, Model, and Created identify the completion. Backends repeat
	// them on every chunk; the first occurrence wins.
	ID      string
	Model   string
	Created int64

	// Err is populated if the stream encountered an error.
	Err error
}
