package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/storage/memory"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/transport"
)

// fakeProvider replays scripted completions and streams, recording the
// requests it receives.
type fakeProvider struct {
	responses []*provider.Response
	streams   [][]provider.Event
	completeErr error
	streamErr   error

	requests []*provider.Request
	calls    int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, ToolCalling: true, Vision: true}
}

func (f *fakeProvider) Complete(_ context.Context, req *provider.Request) (*provider.Response, error) {
	// Snapshot messages; the loop mutates the slice between turns.
	f.requests = append(f.requests, snapshotRequest(req))
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeProvider) Stream(_ context.Context, req *provider.Request) (<-chan provider.Event, error) {
	f.requests = append(f.requests, snapshotRequest(req))
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.streams) {
		idx = len(f.streams) - 1
	}
	ch := make(chan provider.Event, len(f.streams[idx]))
	for _, ev := range f.streams[idx] {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) ListModels(_ context.Context) ([]api.ModelInfo, error) {
	return []api.ModelInfo{{ID: "fake-model"}}, nil
}

func (f *fakeProvider) Close() error { return nil }

func snapshotRequest(req *provider.Request) *provider.Request {
	c := *req
	c.Messages = append([]api.Message(nil), req.Messages...)
	return &c
}

// captureWriter records everything written through the ResponseWriter.
type captureWriter struct {
	events   []api.StreamEvent
	response *api.ChatResponse
}

func (w *captureWriter) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	w.events = append(w.events, ev)
	return nil
}

func (w *captureWriter) WriteResponse(_ context.Context, resp *api.ChatResponse) error {
	w.response = resp
	return nil
}

func (w *captureWriter) Flush() error { return nil }

func textResponse(content string) *provider.Response {
	return &provider.Response{
		Model:        "fake-model",
		Message:      api.Message{Role: api.RoleAssistant, Content: content},
		FinishReason: api.FinishStop,
		Usage:        api.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(callID, name, args string) *provider.Response {
	return &provider.Response{
		Model: "fake-model",
		Message: api.Message{
			Role: api.RoleAssistant,
			ToolCalls: []api.ToolCall{{
				ID:   callID,
				Type: "function",
				Function: api.FunctionCall{Name: name, Arguments: args},
			}},
		},
		FinishReason: api.FinishToolCalls,
		Usage:        api.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func userRequest(content string) *api.ChatRequest {
	return &api.ChatRequest{
		Model:    "fake-model",
		Messages: []api.Message{{Role: api.RoleUser, Content: content}},
	}
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(tools.NewFunc("echo", "echoes its input", nil,
		func(_ context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return "echo: " + in.Text, nil
		}))
	return reg
}

func TestNonStreamingCompletion(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{textResponse("hello there")}}
	eng, err := New(fake, nil, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), userRequest("hi"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if w.response == nil {
		t.Fatal("no response written")
	}
	if w.response.Message.Content != "hello there" {
		t.Errorf("content = %q, want %q", w.response.Message.Content, "hello there")
	}
	if w.response.FinishReason != api.FinishStop {
		t.Errorf("finish reason = %q, want stop", w.response.FinishReason)
	}
	if w.response.Usage == nil || w.response.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v, want 15 total tokens", w.response.Usage)
	}
	if len(w.response.History) != 0 {
		t.Errorf("history has %d messages, want 0 for single-turn chat", len(w.response.History))
	}
}

func TestToolLoopFeedsResultsBack(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{
		toolCallResponse("call_1", "echo", `{"text":"ping"}`),
		textResponse("the tool said: echo: ping"),
	}}
	eng, _ := New(fake, nil, echoRegistry(t), Config{})

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), userRequest("run echo"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if fake.calls != 2 {
		t.Fatalf("provider called %d times, want 2", fake.calls)
	}

	// Second request must carry: user, assistant tool-call, tool result.
	second := fake.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second request has %d messages, want 3: %+v", len(second), second)
	}
	if second[1].Role != api.RoleAssistant || len(second[1].ToolCalls) != 1 {
		t.Errorf("second request messages[1] should be assistant tool-call message: %+v", second[1])
	}
	if second[2].Role != api.RoleTool || second[2].ToolCallID != "call_1" {
		t.Errorf("second request messages[2] should be tool result for call_1: %+v", second[2])
	}
	if second[2].Content != "echo: ping" {
		t.Errorf("tool result content = %q, want %q", second[2].Content, "echo: ping")
	}

	if w.response.FinishReason != api.FinishStop {
		t.Errorf("finish reason = %q, want stop", w.response.FinishReason)
	}
	if len(w.response.History) != 2 {
		t.Errorf("history has %d messages, want 2 (tool-call + result)", len(w.response.History))
	}
	if w.response.Usage.TotalTokens != 30 {
		t.Errorf("cumulative total tokens = %d, want 30", w.response.Usage.TotalTokens)
	}
}

func TestUnhandledToolCallsReturnToClient(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{
		toolCallResponse("call_9", "client_side_tool", `{}`),
	}}
	eng, _ := New(fake, nil, echoRegistry(t), Config{})

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), userRequest("use the client tool"), w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("provider called %d times, want 1 (no loop for client tools)", fake.calls)
	}
	if w.response.FinishReason != api.FinishToolCalls {
		t.Errorf("finish reason = %q, want tool_calls", w.response.FinishReason)
	}
	if len(w.response.Message.ToolCalls) != 1 {
		t.Errorf("message should carry the unhandled tool call: %+v", w.response.Message)
	}
}

func TestToolLoopRespectsMaxTurns(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{
		toolCallResponse("call_loop", "echo", `{"text":"again"}`),
	}}
	eng, _ := New(fake, nil, echoRegistry(t), Config{MaxToolTurns: 5})

	req := userRequest("loop forever")
	two := 2
	req.MaxToolTurns = &two

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if fake.calls != 2 {
		t.Errorf("provider called %d times, want 2 (request lowers the server limit)", fake.calls)
	}
	if w.response.FinishReason != api.FinishLength {
		t.Errorf("finish reason = %q, want length after loop exhaustion", w.response.FinishReason)
	}
}

func TestExhaustedLoopPersistsEachMessageOnce(t *testing.T) {
	const convID = "conv_looploop1234567890abcdef"
	store := memory.New(100)
	fake := &fakeProvider{responses: []*provider.Response{
		toolCallResponse("call_loop", "echo", `{"text":"again"}`),
	}}
	eng, _ := New(fake, store, echoRegistry(t), Config{MaxToolTurns: 2})

	req := userRequest("loop forever")
	req.Conversation = convID

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if w.response.FinishReason != api.FinishLength {
		t.Fatalf("finish reason = %q, want length", w.response.FinishReason)
	}

	conv, err := store.GetConversation(context.Background(), convID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}

	// 1 user message plus assistant tool call and tool result per turn.
	if len(conv.Messages) != 5 {
		t.Fatalf("conversation has %d messages, want 5: %+v", len(conv.Messages), conv.Messages)
	}
	toolResults := 0
	for i, m := range conv.Messages {
		if m.Role == api.RoleTool {
			toolResults++
		}
		if i > 0 && m.Role == conv.Messages[i-1].Role && m.Content == conv.Messages[i-1].Content && m.ToolCallID == conv.Messages[i-1].ToolCallID {
			t.Errorf("messages %d and %d are duplicates: %+v", i-1, i, m)
		}
	}
	if toolResults != 2 {
		t.Errorf("stored %d tool results, want 2 (one per turn)", toolResults)
	}
}

func TestAllowedToolsRejection(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{
		toolCallResponse("call_2", "echo", `{"text":"blocked"}`),
		textResponse("understood"),
	}}
	eng, _ := New(fake, nil, echoRegistry(t), Config{})

	req := userRequest("try echo")
	req.AllowedTools = []string{"some_other_tool"}

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	second := fake.requests[1].Messages
	toolMsg := second[len(second)-1]
	if toolMsg.Role != api.RoleTool {
		t.Fatalf("last message of second request should be a tool result: %+v", toolMsg)
	}
	if toolMsg.Content == "" || toolMsg.ToolCallID != "call_2" {
		t.Errorf("rejected call should produce an error result for call_2: %+v", toolMsg)
	}
}

func TestDefaultModelApplied(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{textResponse("ok")}}
	eng, _ := New(fake, nil, nil, Config{DefaultModel: "fallback-model"})

	req := &api.ChatRequest{Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}}}
	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if fake.requests[0].Model != "fallback-model" {
		t.Errorf("provider model = %q, want fallback-model", fake.requests[0].Model)
	}
}

func TestMissingModelWithoutDefault(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{textResponse("ok")}}
	eng, _ := New(fake, nil, nil, Config{})

	req := &api.ChatRequest{Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}}}
	err := eng.Chat(context.Background(), req, &captureWriter{})

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Param != "model" {
		t.Fatalf("expected invalid_request on model, got %v", err)
	}
}

func TestInstructionsBecomeSystemMessage(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{textResponse("ok")}}
	eng, _ := New(fake, nil, nil, Config{})

	req := userRequest("hi")
	req.Instructions = "answer briefly"

	if err := eng.Chat(context.Background(), req, &captureWriter{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	first := fake.requests[0].Messages[0]
	if first.Role != api.RoleSystem || first.Content != "answer briefly" {
		t.Errorf("first message = %+v, want system instructions", first)
	}
}

func TestConversationHistoryAndPersistence(t *testing.T) {
	const convID = "conv_abcdefghijklmnopqrstuvwx"
	store := memory.New(100)
	err := store.AppendMessages(context.Background(), convID, "fake-model", []api.Message{
		{Role: api.RoleUser, Content: "earlier question"},
		{Role: api.RoleAssistant, Content: "earlier answer"},
	})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	fake := &fakeProvider{responses: []*provider.Response{textResponse("followup answer")}}
	eng, _ := New(fake, store, nil, Config{})

	req := userRequest("followup question")
	req.Conversation = convID

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	// History was prepended to the provider request.
	sent := fake.requests[0].Messages
	if len(sent) != 3 {
		t.Fatalf("provider got %d messages, want 3 (2 stored + 1 new): %+v", len(sent), sent)
	}
	if sent[0].Content != "earlier question" || sent[1].Content != "earlier answer" {
		t.Errorf("stored history not prepended: %+v", sent)
	}

	// The new exchange was appended after completion.
	conv, err := store.GetConversation(context.Background(), convID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv.Messages) != 4 {
		t.Fatalf("conversation has %d messages, want 4", len(conv.Messages))
	}
	if conv.Messages[3].Content != "followup answer" {
		t.Errorf("last stored message = %+v, want the assistant answer", conv.Messages[3])
	}

	if w.response.Conversation != convID {
		t.Errorf("response conversation = %q, want %q", w.response.Conversation, convID)
	}
}

func TestUnknownConversationStartsEmpty(t *testing.T) {
	store := memory.New(100)
	fake := &fakeProvider{responses: []*provider.Response{textResponse("fresh answer")}}
	eng, _ := New(fake, store, nil, Config{})

	req := userRequest("first message")
	req.Conversation = "conv_zzzzzzzzzzzzzzzzzzzzzzzz"

	if err := eng.Chat(context.Background(), req, &captureWriter{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(fake.requests[0].Messages) != 1 {
		t.Errorf("provider got %d messages, want only the new one", len(fake.requests[0].Messages))
	}

	conv, err := store.GetConversation(context.Background(), req.Conversation)
	if err != nil {
		t.Fatalf("conversation should have been created: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("conversation has %d messages, want 2", len(conv.Messages))
	}
}

func TestServerToolsMergedIntoRequest(t *testing.T) {
	fake := &fakeProvider{responses: []*provider.Response{textResponse("ok")}}
	eng, _ := New(fake, nil, echoRegistry(t), Config{})

	req := userRequest("hi")
	req.Tools = []api.ToolDefinition{{Type: "function", Name: "client_tool"}}

	if err := eng.Chat(context.Background(), req, &captureWriter{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	sent := fake.requests[0].Tools
	if len(sent) != 2 {
		t.Fatalf("provider got %d tools, want 2 (client + server): %+v", len(sent), sent)
	}
	if sent[0].Name != "client_tool" || sent[1].Name != "echo" {
		t.Errorf("tools = %+v, want client tool first then echo", sent)
	}
}

func eventTypes(events []api.StreamEvent) []api.StreamEventType {
	out := make([]api.StreamEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestStreamingLifecycle(t *testing.T) {
	fake := &fakeProvider{streams: [][]provider.Event{{
		{Type: provider.EventTextDelta, Delta: "hel", ID: "cmpl-1", Model: "fake-model"},
		{Type: provider.EventTextDelta, Delta: "lo"},
		{Type: provider.EventDone, FinishReason: api.FinishStop, Usage: &api.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6}},
	}}}
	eng, _ := New(fake, nil, nil, Config{})

	req := userRequest("hi")
	req.Stream = true
	req.StreamOptions = &api.StreamOptions{IncludeUsage: true}

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	want := []api.StreamEventType{
		api.EventChatCreated,
		api.EventMessageStart,
		api.EventMessageDelta,
		api.EventMessageDelta,
		api.EventMessageDone,
		api.EventChatCompleted,
	}
	got := eventTypes(w.events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Sequence numbers are monotonically increasing.
	for i := 1; i < len(w.events); i++ {
		if w.events[i].SequenceNumber <= w.events[i-1].SequenceNumber {
			t.Errorf("sequence numbers not increasing at %d: %d then %d",
				i, w.events[i-1].SequenceNumber, w.events[i].SequenceNumber)
		}
	}

	final := w.events[len(w.events)-1]
	if final.Response == nil {
		t.Fatal("terminal event missing response")
	}
	if final.Response.Message.Content != "hello" {
		t.Errorf("final message = %q, want %q", final.Response.Message.Content, "hello")
	}
	if final.Response.Usage == nil || final.Response.Usage.TotalTokens != 6 {
		t.Errorf("usage = %+v, want 6 total tokens with include_usage", final.Response.Usage)
	}
}

func TestStreamingUsageOmittedWithoutOptIn(t *testing.T) {
	fake := &fakeProvider{streams: [][]provider.Event{{
		{Type: provider.EventTextDelta, Delta: "hi"},
		{Type: provider.EventDone, FinishReason: api.FinishStop, Usage: &api.Usage{TotalTokens: 3}},
	}}}
	eng, _ := New(fake, nil, nil, Config{})

	req := userRequest("hi")
	req.Stream = true

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	final := w.events[len(w.events)-1]
	if final.Response.Usage != nil {
		t.Errorf("usage should be omitted without stream_options.include_usage, got %+v", final.Response.Usage)
	}
}

func TestStreamingToolLoop(t *testing.T) {
	fake := &fakeProvider{streams: [][]provider.Event{
		{
			{Type: provider.EventToolCallDelta, ToolCallIndex: 0, ToolCallID: "call_s1", FunctionName: "echo", Delta: `{"text":`},
			{Type: provider.EventToolCallDelta, ToolCallIndex: 0, Delta: `"ping"}`},
			{Type: provider.EventToolCallDone, ToolCallIndex: 0, ToolCallID: "call_s1", FunctionName: "echo", Delta: `{"text":"ping"}`},
			{Type: provider.EventDone, FinishReason: api.FinishToolCalls},
		},
		{
			{Type: provider.EventTextDelta, Delta: "done"},
			{Type: provider.EventDone, FinishReason: api.FinishStop},
		},
	}}
	eng, _ := New(fake, nil, echoRegistry(t), Config{})

	req := userRequest("stream echo")
	req.Stream = true

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	got := eventTypes(w.events)
	want := []api.StreamEventType{
		api.EventChatCreated,
		api.EventToolCallDelta,
		api.EventToolCallDelta,
		api.EventToolCallDone,
		api.EventMessageDone,
		api.EventToolResult,
		api.EventMessageStart,
		api.EventMessageDelta,
		api.EventMessageDone,
		api.EventChatCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	var toolResult *api.StreamEvent
	for i := range w.events {
		if w.events[i].Type == api.EventToolResult {
			toolResult = &w.events[i]
		}
	}
	if toolResult.CallID != "call_s1" || toolResult.ToolName != "echo" {
		t.Errorf("tool result event = %+v, want call_s1/echo", toolResult)
	}
	if toolResult.Message == nil || toolResult.Message.Content != "echo: ping" {
		t.Errorf("tool result message = %+v, want echo output", toolResult.Message)
	}

	final := w.events[len(w.events)-1]
	if final.Response.FinishReason != api.FinishStop {
		t.Errorf("finish reason = %q, want stop", final.Response.FinishReason)
	}
	if len(final.Response.History) != 2 {
		t.Errorf("history has %d messages, want 2", len(final.Response.History))
	}
}

func TestStreamingFailureEmitsTerminal(t *testing.T) {
	fake := &fakeProvider{streams: [][]provider.Event{{
		{Type: provider.EventTextDelta, Delta: "par"},
		{Type: provider.EventError, Err: errors.New("backend connection reset")},
	}}}
	eng, _ := New(fake, nil, nil, Config{})

	req := userRequest("hi")
	req.Stream = true

	w := &captureWriter{}
	if err := eng.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat should emit chat.failed, not return an error: %v", err)
	}

	final := w.events[len(w.events)-1]
	if final.Type != api.EventChatFailed {
		t.Fatalf("terminal event = %q, want chat.failed", final.Type)
	}
	if final.Response.Error == nil || final.Response.Error.Type != api.ErrorTypeServerError {
		t.Errorf("terminal error = %+v, want server_error", final.Response.Error)
	}
}

func TestNonStreamingProviderErrorPropagates(t *testing.T) {
	fake := &fakeProvider{completeErr: api.NewModelError("model overloaded")}
	eng, _ := New(fake, nil, nil, Config{})

	err := eng.Chat(context.Background(), userRequest("hi"), &captureWriter{})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeModelError {
		t.Fatalf("expected model_error, got %v", err)
	}
}

var _ transport.ChatHandler = (*Engine)(nil)
