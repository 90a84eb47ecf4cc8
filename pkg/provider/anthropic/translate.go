package anthropic

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

// The Messages API requires max_tokens. Used when the caller sets none.
const defaultMaxTokens = 4096

// translateRequest converts a provider.Request into a Messages API body.
// System messages are lifted into the top-level system field; tool results
// become user messages carrying tool_result blocks.
func translateRequest(req *provider.Request) messagesRequest {
	mr := messagesRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        req.Stream,
		MaxTokens:     defaultMaxTokens,
	}
	if req.MaxTokens != nil {
		mr.MaxTokens = *req.MaxTokens
	}
	if req.User != "" {
		mr.Metadata = &requestMetadata{UserID: req.User}
	}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case api.RoleSystem:
			system = append(system, m.Text())

		case api.RoleTool:
			mr.Messages = append(mr.Messages, inputMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})

		case api.RoleAssistant:
			mr.Messages = append(mr.Messages, translateAssistant(m))

		default:
			mr.Messages = append(mr.Messages, inputMessage{
				Role:    "user",
				Content: translateUserContent(m),
			})
		}
	}
	mr.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		mr.Tools = append(mr.Tools, toolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	if req.ToolChoice != nil {
		mr.ToolChoice = translateToolChoice(req.ToolChoice)
	}

	return mr
}

func translateAssistant(m api.Message) inputMessage {
	im := inputMessage{Role: "assistant"}
	if m.Content != "" {
		im.Content = append(im.Content, contentBlock{Type: "text", Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		input := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		im.Content = append(im.Content, contentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return im
}

func translateUserContent(m api.Message) []contentBlock {
	if len(m.Parts) == 0 {
		return []contentBlock{{Type: "text", Text: m.Content}}
	}
	blocks := make([]contentBlock, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case "text":
			blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
		case "image":
			src := &imageSource{}
			if p.Data != "" {
				src.Type = "base64"
				src.MediaType = p.MediaType
				src.Data = p.Data
			} else {
				src.Type = "url"
				src.URL = p.URL
			}
			blocks = append(blocks, contentBlock{Type: "image", Source: src})
		}
	}
	return blocks
}

// translateToolChoice maps the normalized tool choice onto Anthropic's
// variants. "required" is called "any" there; "none" means sending no
// tool_choice but is expressed directly since the API accepts it.
func translateToolChoice(tc *api.ToolChoice) *toolChoice {
	if tc.Function != nil {
		return &toolChoice{Type: "tool", Name: tc.Function.Name}
	}
	switch tc.Mode {
	case "auto":
		return &toolChoice{Type: "auto"}
	case "required":
		return &toolChoice{Type: "any"}
	case "none":
		return &toolChoice{Type: "none"}
	}
	return nil
}

// translateResponse converts a Messages API response into a normalized
// provider.Response. Text blocks concatenate into the message content;
// tool_use blocks become tool calls with their input re-serialized as an
// argument string.
func translateResponse(resp *messagesResponse) *provider.Response {
	msg := api.Message{Role: api.RoleAssistant}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := "{}"
			if len(block.Input) > 0 {
				args = string(block.Input)
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: api.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	msg.Content = text.String()

	pr := &provider.Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Message:      msg,
		FinishReason: mapStopReason(resp.StopReason),
	}
	if resp.Usage != nil {
		pr.Usage = api.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return pr
}

// mapStopReason converts an Anthropic stop_reason to the normalized
// FinishReason.
func mapStopReason(reason string) api.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence", "":
		return api.FinishStop
	case "max_tokens":
		return api.FinishLength
	case "tool_use":
		return api.FinishToolCalls
	case "refusal":
		return api.FinishContentFilter
	default:
		slog.Warn("unknown stop_reason from anthropic, treating as stop",
			"stop_reason", reason,
		)
		return api.FinishStop
	}
}
