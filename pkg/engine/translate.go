package engine

import (
	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/tools"
)

// translateRequest maps a normalized chat request onto the backend-facing
// request. Conversation history has already been resolved into messages
// and the tool set merged by the caller.
func translateRequest(req *api.ChatRequest, messages []api.Message, toolDefs []api.ToolDefinition) *provider.Request {
	provReq := &provider.Request{
		Model:            req.Model,
		Messages:         messages,
		Tools:            toolDefs,
		ToolChoice:       req.ToolChoice,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stream:           req.Stream,
		User:             req.User,
	}
	if req.StreamOptions != nil {
		provReq.IncludeUsage = req.StreamOptions.IncludeUsage
	}
	return provReq
}

// mergeTools combines request-supplied tool definitions with server-side
// executor tools. Request definitions win on a name conflict so a client
// can shadow a builtin with its own schema.
func mergeTools(requestTools, serverTools []api.ToolDefinition) []api.ToolDefinition {
	if len(serverTools) == 0 {
		return requestTools
	}

	seen := make(map[string]bool, len(requestTools))
	merged := make([]api.ToolDefinition, 0, len(requestTools)+len(serverTools))
	for _, td := range requestTools {
		seen[td.Name] = true
		merged = append(merged, td)
	}
	for _, td := range serverTools {
		if !seen[td.Name] {
			merged = append(merged, td)
		}
	}
	return merged
}

// toolCallsFrom converts the assistant message's tool calls into executor
// calls.
func toolCallsFrom(msg api.Message) []tools.Call {
	var calls []tools.Call
	for _, tc := range msg.ToolCalls {
		calls = append(calls, tools.Call{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return calls
}
