package provider

import (
	"errors"
	"testing"

	"github.com/openconduit/conduit/pkg/api"
)

func TestAccumulatorText(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventTextDelta, Delta: "Hello", ID: "chat_abc", Model: "gpt-4o", Created: 1700000000})
	acc.Add(Event{Type: EventTextDelta, Delta: ", "})
	acc.Add(Event{Type: EventTextDelta, Delta: "world"})
	acc.Add(Event{Type: EventDone, FinishReason: api.FinishStop, Usage: &api.Usage{InputTokens: 10, OutputTokens: 3, TotalTokens: 13}})

	resp := acc.Response()
	if resp.Message.Content != "Hello, world" {
		t.Errorf("Content = %q, want %q", resp.Message.Content, "Hello, world")
	}
	if resp.ID != "chat_abc" || resp.Model != "gpt-4o" || resp.Created != 1700000000 {
		t.Errorf("identity = %q/%q/%d, want first-event values", resp.ID, resp.Model, resp.Created)
	}
	if resp.FinishReason != api.FinishStop {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("Usage.TotalTokens = %d, want 13", resp.Usage.TotalTokens)
	}
}

func TestAccumulatorFirstIdentityWins(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventTextDelta, Delta: "a", ID: "chat_first", Model: "m1"})
	acc.Add(Event{Type: EventTextDelta, Delta: "b", ID: "chat_second", Model: "m2"})

	resp := acc.Response()
	if resp.ID != "chat_first" {
		t.Errorf("ID = %q, want chat_first", resp.ID)
	}
	if resp.Model != "m1" {
		t.Errorf("Model = %q, want m1", resp.Model)
	}
}

func TestAccumulatorToolCalls(t *testing.T) {
	acc := NewAccumulator()
	// Interleaved fragments for two parallel tool calls.
	acc.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 0, ToolCallID: "call_a", FunctionName: "get_weather", Delta: `{"loc`})
	acc.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 1, ToolCallID: "call_b", FunctionName: "get_time", Delta: `{"tz":`})
	acc.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 0, Delta: `ation":"Berlin"}`})
	acc.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 1, Delta: `"UTC"}`})
	acc.Add(Event{Type: EventDone, FinishReason: api.FinishToolCalls})

	resp := acc.Response()
	if len(resp.Message.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.Message.ToolCalls))
	}
	first := resp.Message.ToolCalls[0]
	if first.ID != "call_a" || first.Function.Name != "get_weather" {
		t.Errorf("first call = %s/%s, want call_a/get_weather", first.ID, first.Function.Name)
	}
	if first.Function.Arguments != `{"location":"Berlin"}` {
		t.Errorf("first args = %q", first.Function.Arguments)
	}
	second := resp.Message.ToolCalls[1]
	if second.Function.Arguments != `{"tz":"UTC"}` {
		t.Errorf("second args = %q", second.Function.Arguments)
	}
	if resp.FinishReason != api.FinishToolCalls {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
}

func TestAccumulatorToolCallDoneReplacesFragments(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 0, ToolCallID: "call_x", FunctionName: "search", Delta: `{"q"`})
	acc.Add(Event{Type: EventToolCallDone, ToolCallIndex: 0, ToolCallID: "call_x", FunctionName: "search", Delta: `{"q":"go"}`})

	resp := acc.Response()
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	if got := resp.Message.ToolCalls[0].Function.Arguments; got != `{"q":"go"}` {
		t.Errorf("args = %q, want full replacement from done event", got)
	}
}

func TestAccumulatorGeneratesMissingCallID(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 0, FunctionName: "f", Delta: `{}`})

	resp := acc.Response()
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].ID == "" {
		t.Error("tool call without backend ID should get a generated one")
	}
}

func TestAccumulatorDefaultFinishReason(t *testing.T) {
	textOnly := NewAccumulator()
	textOnly.Add(Event{Type: EventTextDelta, Delta: "hi"})
	if got := textOnly.Response().FinishReason; got != api.FinishStop {
		t.Errorf("text-only default finish = %q, want stop", got)
	}

	withCalls := NewAccumulator()
	withCalls.Add(Event{Type: EventToolCallDelta, ToolCallIndex: 0, ToolCallID: "call_1", FunctionName: "f", Delta: "{}"})
	if got := withCalls.Response().FinishReason; got != api.FinishToolCalls {
		t.Errorf("tool-call default finish = %q, want tool_calls", got)
	}
}

func TestDrain(t *testing.T) {
	ch := make(chan Event, 4)
	ch <- Event{Type: EventTextDelta, Delta: "ok", ID: "chat_1"}
	ch <- Event{Type: EventDone, FinishReason: api.FinishStop}
	close(ch)

	resp, err := Drain(ch)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Message.Content)
	}
}

func TestDrainError(t *testing.T) {
	streamErr := errors.New("connection reset")
	ch := make(chan Event, 2)
	ch <- Event{Type: EventTextDelta, Delta: "partial"}
	ch <- Event{Type: EventError, Err: streamErr}
	close(ch)

	if _, err := Drain(ch); !errors.Is(err, streamErr) {
		t.Errorf("Drain() error = %v, want %v", err, streamErr)
	}
}

func TestValidateCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		caps      Capabilities
		req       api.ChatRequest
		wantParam string
	}{
		{
			"stream unsupported",
			Capabilities{},
			api.ChatRequest{Model: "m", Stream: true, Messages: []api.Message{{Role: api.RoleUser, Content: "x"}}},
			"stream",
		},
		{
			"tools unsupported",
			Capabilities{Streaming: true},
			api.ChatRequest{Model: "m", Tools: []api.ToolDefinition{{Type: "function", Name: "f"}}, Messages: []api.Message{{Role: api.RoleUser, Content: "x"}}},
			"tools",
		},
		{
			"vision unsupported",
			Capabilities{Streaming: true, ToolCalling: true},
			api.ChatRequest{Model: "m", Messages: []api.Message{
				{Role: api.RoleUser, Parts: []api.ContentPart{{Type: "image", URL: "https://x/a.png"}}},
			}},
			"messages",
		},
		{
			"model not served",
			Capabilities{Streaming: true, SupportedModels: []string{"a", "b"}},
			api.ChatRequest{Model: "c", Messages: []api.Message{{Role: api.RoleUser, Content: "x"}}},
			"model",
		},
		{
			"compatible",
			Capabilities{Streaming: true, ToolCalling: true, Vision: true},
			api.ChatRequest{Model: "m", Stream: true, Messages: []api.Message{{Role: api.RoleUser, Content: "x"}}},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapabilities(tt.caps, &tt.req)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("ValidateCapabilities() = %v, want nil", err)
				}
				return
			}
			if err == nil || err.Param != tt.wantParam {
				t.Fatalf("ValidateCapabilities() = %v, want error on %q", err, tt.wantParam)
			}
		})
	}
}
