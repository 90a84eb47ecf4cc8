package ollama

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

// translateRequest converts a provider.Request into Ollama's /api/chat
// body. Sampling parameters move into the options map; tool_choice has no
// Ollama equivalent and is dropped.
func translateRequest(req *provider.Request) chatRequest {
	cr := chatRequest{
		Model:  req.Model,
		Stream: req.Stream,
	}

	opts := make(map[string]any)
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}
	if req.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		opts["presence_penalty"] = *req.PresencePenalty
	}
	for k, v := range req.Extra {
		opts[k] = v
	}
	if len(opts) > 0 {
		cr.Options = opts
	}

	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, translateMessage(m))
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return cr
}

func translateMessage(m api.Message) chatMessage {
	cm := chatMessage{Role: string(m.Role)}

	if len(m.Parts) > 0 {
		for _, p := range m.Parts {
			switch p.Type {
			case "text":
				cm.Content += p.Text
			case "image":
				// Ollama only accepts inline base64 images. URL-only
				// parts cannot be forwarded.
				if p.Data != "" {
					cm.Images = append(cm.Images, p.Data)
				} else {
					slog.Warn("dropping image part without inline data for ollama backend")
				}
			}
		}
	} else {
		cm.Content = m.Content
	}

	if m.Role == api.RoleTool {
		cm.ToolName = m.Name
	}

	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
			Function: chatFunctionCall{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		})
	}

	return cm
}

// translateToolCalls converts Ollama tool calls to normalized ones.
// Ollama sends arguments as a JSON object and no call IDs, so IDs are
// generated here.
func translateToolCalls(calls []chatToolCall) []api.ToolCall {
	out := make([]api.ToolCall, 0, len(calls))
	for _, tc := range calls {
		args := "{}"
		if len(tc.Function.Arguments) > 0 {
			args = string(tc.Function.Arguments)
		}
		out = append(out, api.ToolCall{
			ID:   api.NewToolCallID(),
			Type: "function",
			Function: api.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		})
	}
	return out
}

// mapDoneReason converts Ollama's done_reason to the normalized
// FinishReason. Tool calls are detected from the message, not the reason.
func mapDoneReason(reason string, hasToolCalls bool) api.FinishReason {
	if hasToolCalls {
		return api.FinishToolCalls
	}
	switch reason {
	case "stop", "":
		return api.FinishStop
	case "length":
		return api.FinishLength
	default:
		slog.Warn("unknown done_reason from ollama, treating as stop",
			"done_reason", reason,
		)
		return api.FinishStop
	}
}

func parseCreatedAt(s string) int64 {
	if s == "" {
		return 0
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.Unix()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return 0
}
