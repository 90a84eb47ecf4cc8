package openaicompat

import (
	"log/slog"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

// translateResponse converts a Chat Completions response into a normalized
// provider.Response. Only choices[0] is used; the gateway never requests
// multiple choices.
func translateResponse(resp *chatResponse) (*provider.Response, error) {
	pr := &provider.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
	}

	if resp.Usage != nil {
		pr.Usage = api.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := resp.Choices[0]
	pr.FinishReason = mapFinishReason(choice.FinishReason)

	msg := api.Message{Role: api.RoleAssistant}
	if choice.Message.Content != nil {
		msg.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewToolCallID()
		}
		msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
			ID:   id,
			Type: "function",
			Function: api.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	pr.Message = msg

	return pr, nil
}

// mapFinishReason converts a Chat Completions finish_reason string to the
// normalized FinishReason. Unknown values map to stop with a warning so a
// new backend value degrades gracefully instead of failing the request.
func mapFinishReason(reason string) api.FinishReason {
	switch reason {
	case "stop", "":
		return api.FinishStop
	case "length":
		return api.FinishLength
	case "tool_calls", "function_call":
		return api.FinishToolCalls
	case "content_filter":
		return api.FinishContentFilter
	default:
		slog.Warn("unknown finish_reason from backend, treating as stop",
			"finish_reason", reason,
		)
		return api.FinishStop
	}
}
