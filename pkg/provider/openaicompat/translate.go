package openaicompat

import (
	"fmt"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

// translateRequest converts a provider.Request into a Chat Completions
// request body.
func translateRequest(req *provider.Request) chatRequest {
	cr := chatRequest{
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stream:           req.Stream,
		User:             req.User,
	}

	// Usage is only delivered on streams when explicitly requested.
	if req.Stream {
		cr.StreamOptions = &chatStreamOptions{IncludeUsage: true}
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
				Strict:      t.Strict,
			},
		})
	}

	if req.ToolChoice != nil {
		if req.ToolChoice.Mode != "" {
			cr.ToolChoice = req.ToolChoice.Mode
		} else if req.ToolChoice.Function != nil {
			var tcf chatToolChoiceFunction
			tcf.Type = "function"
			tcf.Function.Name = req.ToolChoice.Function.Name
			cr.ToolChoice = tcf
		}
	}

	return cr
}

func translateMessage(m api.Message) chatMessage {
	cm := chatMessage{
		Role:       string(m.Role),
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}

	if len(m.Parts) > 0 {
		cm.Content = translateParts(m.Parts)
	} else {
		cm.Content = m.Content
	}

	for _, tc := range m.ToolCalls {
		cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: chatFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return cm
}

// translateParts maps normalized content parts to the Chat Completions
// content array. Inline image data becomes a data URI.
func translateParts(parts []api.ContentPart) []chatContentPart {
	out := make([]chatContentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "text":
			out = append(out, chatContentPart{Type: "text", Text: p.Text})
		case "image":
			url := p.URL
			if url == "" && p.Data != "" {
				url = fmt.Sprintf("data:%s;base64,%s", p.MediaType, p.Data)
			}
			out = append(out, chatContentPart{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: url},
			})
		}
	}
	return out
}
