package api

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Messages and content
// ---------------------------------------------------------------------------

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is a piece of multimodal user input. Type is "text" or
// "image"; images carry either a URL or inline base64 data with a media type.
type ContentPart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// Message is a single conversation entry in the normalized schema.
//
// For plain text the Content field is used. Multimodal user input uses
// Parts instead. Assistant messages that request tool invocations carry
// ToolCalls; tool-result messages use RoleTool with ToolCallID referencing
// the call they answer.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// Text returns the textual content of the message, concatenating text
// parts when the message is multimodal.
func (m Message) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// IsMultimodal reports whether the message carries non-text content parts.
func (m Message) IsMultimodal() bool {
	for _, p := range m.Parts {
		if p.Type != "text" {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tool calling
// ---------------------------------------------------------------------------

// ToolCall is a model's request to invoke a tool. Arguments is the raw
// JSON-encoded argument string exactly as produced by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool available to the model. Parameters is a
// JSON Schema document passed through opaquely.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

// ToolChoice is a tool selection strategy: either a plain string ("auto",
// "required", "none") or a structured selection of a specific function.
type ToolChoice struct {
	Mode     string              `json:"-"`
	Function *ToolChoiceFunction `json:"-"`
}

// ToolChoiceFunction names a specific function the model must call.
type ToolChoiceFunction struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

var (
	// ToolChoiceAuto lets the model decide whether to use a tool.
	ToolChoiceAuto = ToolChoice{Mode: "auto"}
	// ToolChoiceRequired forces the model to use some tool.
	ToolChoiceRequired = ToolChoice{Mode: "required"}
	// ToolChoiceNone prevents the model from using any tool.
	ToolChoiceNone = ToolChoice{Mode: "none"}
)

// NewToolChoiceFunction creates a ToolChoice selecting one function by name.
func NewToolChoiceFunction(name string) ToolChoice {
	return ToolChoice{Function: &ToolChoiceFunction{Type: "function", Name: name}}
}

// MarshalJSON serializes a ToolChoice as either a JSON string or an object.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.Mode != "" {
		return json.Marshal(tc.Mode)
	}
	if tc.Function != nil {
		return json.Marshal(tc.Function)
	}
	return nil, fmt.Errorf("tool choice has neither mode nor function")
}

// UnmarshalJSON accepts either a JSON string or a function-selection object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.Mode = s
		tc.Function = nil
		return nil
	}

	var f ToolChoiceFunction
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("tool_choice must be a string or object: %w", err)
	}
	tc.Mode = ""
	tc.Function = &f
	return nil
}

// ---------------------------------------------------------------------------
// Request and response
// ---------------------------------------------------------------------------

// ChatRequest is the normalized request for one chat completion.
type ChatRequest struct {
	Model             string           `json:"model"`
	Messages          []Message        `json:"messages"`
	Instructions      string           `json:"instructions,omitempty"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
	ToolChoice        *ToolChoice      `json:"tool_choice,omitempty"`
	AllowedTools      []string         `json:"allowed_tools,omitempty"`
	Temperature       *float64         `json:"temperature,omitempty"`
	TopP              *float64         `json:"top_p,omitempty"`
	MaxTokens         *int             `json:"max_tokens,omitempty"`
	Stop              []string         `json:"stop,omitempty"`
	FrequencyPenalty  *float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64         `json:"presence_penalty,omitempty"`
	Stream            bool             `json:"stream,omitempty"`
	StreamOptions     *StreamOptions   `json:"stream_options,omitempty"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls,omitempty"`
	MaxToolTurns      *int             `json:"max_tool_turns,omitempty"`
	Conversation      string           `json:"conversation,omitempty"`
	User              string           `json:"user,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// StreamOptions controls streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishCancelled     FinishReason = "cancelled"
)

// ChatResponse is the normalized result of a chat completion. Message is
// the final assistant message; when the tool loop ran, History additionally
// carries the intermediate tool-call and tool-result messages in order.
type ChatResponse struct {
	ID           string       `json:"id"`
	Object       string       `json:"object"`
	CreatedAt    int64        `json:"created_at"`
	Model        string       `json:"model"`
	Conversation string       `json:"conversation,omitempty"`
	Message      Message      `json:"message"`
	History      []Message    `json:"history,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        *Usage       `json:"usage"`
	Error        *APIError    `json:"error,omitempty"`
}

// Conversation is a stored message history addressed by conversation ID.
// Requests carrying the ID are resolved against it and completed turns are
// appended back.
type Conversation struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	Model     string    `json:"model,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// Usage holds token accounting for a response. When the tool loop runs
// multiple provider turns the counts are cumulative.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ---------------------------------------------------------------------------
// Embeddings
// ---------------------------------------------------------------------------

// EmbeddingRequest is the normalized request for the embeddings operation.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse carries one vector per input, in input order.
type EmbeddingResponse struct {
	Object     string      `json:"object"`
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Usage      *Usage      `json:"usage,omitempty"`
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

// ModelInfo describes one model served by a provider backend.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the wire format for the model listing endpoint.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
