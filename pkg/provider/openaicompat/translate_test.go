package openaicompat

import (
	"encoding/json"
	"testing"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

func TestTranslateRequest(t *testing.T) {
	temp := 0.7
	maxTok := 256
	tc := api.ToolChoiceAuto

	req := &provider.Request{
		Model: "gpt-4o",
		Messages: []api.Message{
			{Role: api.RoleSystem, Content: "be brief"},
			{Role: api.RoleUser, Content: "hi"},
		},
		Tools: []api.ToolDefinition{
			{Name: "search", Description: "web search", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
		ToolChoice:  &tc,
		Temperature: &temp,
		MaxTokens:   &maxTok,
		Stream:      true,
	}

	cr := translateRequest(req)

	if cr.Model != "gpt-4o" {
		t.Errorf("Model = %q", cr.Model)
	}
	if len(cr.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(cr.Messages))
	}
	if cr.Messages[0].Role != "system" || cr.Messages[0].Content != "be brief" {
		t.Errorf("system message = %+v", cr.Messages[0])
	}
	if len(cr.Tools) != 1 || cr.Tools[0].Type != "function" || cr.Tools[0].Function.Name != "search" {
		t.Errorf("tools = %+v", cr.Tools)
	}
	if cr.ToolChoice != "auto" {
		t.Errorf("ToolChoice = %v, want auto", cr.ToolChoice)
	}
	if cr.StreamOptions == nil || !cr.StreamOptions.IncludeUsage {
		t.Error("streaming request should request usage in the stream")
	}
	if cr.Temperature == nil || *cr.Temperature != 0.7 {
		t.Errorf("Temperature = %v", cr.Temperature)
	}
}

func TestTranslateRequestToolChoiceFunction(t *testing.T) {
	tc := api.NewToolChoiceFunction("get_weather")
	req := &provider.Request{
		Model:      "m",
		Messages:   []api.Message{{Role: api.RoleUser, Content: "x"}},
		ToolChoice: &tc,
	}

	cr := translateRequest(req)
	data, err := json.Marshal(cr.ToolChoice)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"function","function":{"name":"get_weather"}}`
	if string(data) != want {
		t.Errorf("tool_choice = %s, want %s", data, want)
	}
}

func TestTranslateMessageToolRoundtrip(t *testing.T) {
	msg := api.Message{
		Role: api.RoleAssistant,
		ToolCalls: []api.ToolCall{
			{ID: "call_1", Type: "function", Function: api.FunctionCall{Name: "f", Arguments: `{"a":1}`}},
		},
	}
	cm := translateMessage(msg)
	if len(cm.ToolCalls) != 1 || cm.ToolCalls[0].ID != "call_1" {
		t.Fatalf("tool calls = %+v", cm.ToolCalls)
	}

	result := api.Message{Role: api.RoleTool, Content: "42", ToolCallID: "call_1"}
	rm := translateMessage(result)
	if rm.Role != "tool" || rm.ToolCallID != "call_1" || rm.Content != "42" {
		t.Errorf("tool result = %+v", rm)
	}
}

func TestTranslatePartsImages(t *testing.T) {
	parts := []api.ContentPart{
		{Type: "text", Text: "what is this?"},
		{Type: "image", URL: "https://example.com/cat.png"},
		{Type: "image", Data: "aGVsbG8=", MediaType: "image/png"},
	}

	out := translateParts(parts)
	if len(out) != 3 {
		t.Fatalf("got %d parts, want 3", len(out))
	}
	if out[0].Type != "text" || out[0].Text != "what is this?" {
		t.Errorf("text part = %+v", out[0])
	}
	if out[1].ImageURL == nil || out[1].ImageURL.URL != "https://example.com/cat.png" {
		t.Errorf("url part = %+v", out[1])
	}
	if out[2].ImageURL == nil || out[2].ImageURL.URL != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("data part = %+v", out[2])
	}
}

func TestTranslateResponse(t *testing.T) {
	content := "hello there"
	resp := &chatResponse{
		ID:      "chat_9",
		Created: 1700000000,
		Model:   "gpt-4o",
		Choices: []chatChoice{
			{
				Message:      chatResponseMessage{Role: "assistant", Content: &content},
				FinishReason: "stop",
			},
		},
		Usage: &chatUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
	}

	pr, err := translateResponse(resp)
	if err != nil {
		t.Fatalf("translateResponse() error = %v", err)
	}
	if pr.Message.Content != "hello there" {
		t.Errorf("Content = %q", pr.Message.Content)
	}
	if pr.FinishReason != api.FinishStop {
		t.Errorf("FinishReason = %q", pr.FinishReason)
	}
	if pr.Usage.TotalTokens != 6 {
		t.Errorf("Usage = %+v", pr.Usage)
	}
}

func TestTranslateResponseNoChoices(t *testing.T) {
	if _, err := translateResponse(&chatResponse{ID: "chat_x"}); err == nil {
		t.Fatal("empty choices should be an error")
	}
}

func TestTranslateResponseGeneratesCallID(t *testing.T) {
	resp := &chatResponse{
		ID: "chat_y",
		Choices: []chatChoice{
			{
				Message: chatResponseMessage{
					Role: "assistant",
					ToolCalls: []chatToolCall{
						{Type: "function", Function: chatFunctionCall{Name: "f", Arguments: "{}"}},
					},
				},
				FinishReason: "tool_calls",
			},
		},
	}
	pr, err := translateResponse(resp)
	if err != nil {
		t.Fatalf("translateResponse() error = %v", err)
	}
	if pr.Message.ToolCalls[0].ID == "" {
		t.Error("missing backend call ID should be replaced with a generated one")
	}
}
