package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientComplete(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Stream {
			t.Error("Complete must not request streaming")
		}
		if body.Options["temperature"] != 0.5 {
			t.Errorf("options = %v, want temperature in options map", body.Options)
		}

		json.NewEncoder(w).Encode(chatResponse{
			Model:           body.Model,
			CreatedAt:       "2026-08-23T10:00:00Z",
			Message:         chatMessage{Role: "assistant", Content: "hi there"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 12,
			EvalCount:       4,
		})
	}))

	temp := 0.5
	resp, err := c.Complete(context.Background(), &provider.Request{
		Model:       "llama3.2",
		Messages:    []api.Message{{Role: api.RoleUser, Content: "hello"}},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Content != "hi there" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.FinishReason != api.FinishStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 || resp.Usage.TotalTokens != 16 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.ID == "" {
		t.Error("response should carry a generated ID")
	}
}

func TestClientCompleteToolCalls(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{
			Model: "llama3.2",
			Message: chatMessage{
				Role: "assistant",
				ToolCalls: []chatToolCall{
					{Function: chatFunctionCall{Name: "get_weather", Arguments: json.RawMessage(`{"city":"Berlin"}`)}},
				},
			},
			Done:       true,
			DoneReason: "stop",
		})
	}))

	resp, err := c.Complete(context.Background(), &provider.Request{
		Model:    "llama3.2",
		Messages: []api.Message{{Role: api.RoleUser, Content: "weather?"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.FinishReason != api.FinishToolCalls {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Function.Name != "get_weather" || tc.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.ID == "" {
		t.Error("ollama tool calls should get generated IDs")
	}
}

func TestClientStream(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []chatResponse{
			{Model: "llama3.2", Message: chatMessage{Role: "assistant", Content: "Hel"}},
			{Model: "llama3.2", Message: chatMessage{Role: "assistant", Content: "lo"}},
			{Model: "llama3.2", Done: true, DoneReason: "stop", PromptEvalCount: 3, EvalCount: 2},
		}
		enc := json.NewEncoder(w)
		for _, l := range lines {
			enc.Encode(l)
		}
	}))

	events, err := c.Stream(context.Background(), &provider.Request{
		Model:    "llama3.2",
		Messages: []api.Message{{Role: api.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	resp, err := provider.Drain(events)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if resp.Message.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("Usage.TotalTokens = %d, want 5", resp.Usage.TotalTokens)
	}
}

func TestClientStreamToolCall(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(chatResponse{
			Model: "llama3.2",
			Message: chatMessage{
				Role: "assistant",
				ToolCalls: []chatToolCall{
					{Function: chatFunctionCall{Name: "get_time", Arguments: json.RawMessage(`{"tz":"UTC"}`)}},
				},
			},
		})
		enc.Encode(chatResponse{Model: "llama3.2", Done: true, DoneReason: "stop"})
	}))

	events, err := c.Stream(context.Background(), &provider.Request{
		Model:    "llama3.2",
		Messages: []api.Message{{Role: api.RoleUser, Content: "time?"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	resp, err := provider.Drain(events)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if resp.FinishReason != api.FinishToolCalls {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Name != "get_time" {
		t.Errorf("tool calls = %+v", resp.Message.ToolCalls)
	}
}

func TestParseJSONLinesStopsWhenConsumerGone(t *testing.T) {
	var lines strings.Builder
	for i := 0; i < 40; i++ {
		lines.WriteString(`{"model":"llama3","message":{"role":"assistant","content":"x"},"done":false}` + "\n")
	}
	lines.WriteString(`{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}` + "\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan provider.Event, 16)

	done := make(chan struct{})
	go func() {
		parseJSONLines(ctx, strings.NewReader(lines.String()), ch)
		close(done)
	}()

	// Nothing reads from ch. Once the buffer fills, cancellation must
	// release the producer instead of leaving it blocked on the send.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("parseJSONLines still running 2s after context cancellation")
	}
}

func TestClientListModels(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(tagsResponse{
			Models: []tagModel{{Name: "llama3.2:latest"}, {Name: "qwen2.5:7b"}},
		})
	}))

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0].ID != "llama3.2:latest" {
		t.Errorf("models = %+v", models)
	}
}

func TestClientEmbed(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(embedResponse{
			Model:           "nomic-embed-text",
			Embeddings:      [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			PromptEvalCount: 6,
		})
	}))

	vecs, usage, err := c.Embed(context.Background(), "nomic-embed-text", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 0.4 {
		t.Errorf("vectors = %v", vecs)
	}
	if usage == nil || usage.InputTokens != 6 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestClientModelNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
	}))

	_, err := c.Complete(context.Background(), &provider.Request{
		Model:    "missing",
		Messages: []api.Message{{Role: api.RoleUser, Content: "x"}},
	})
	apiErr, ok := err.(*api.APIError)
	if !ok || apiErr.Type != api.ErrorTypeNotFound {
		t.Fatalf("error = %v, want not_found", err)
	}
}

func TestMapDoneReason(t *testing.T) {
	tests := []struct {
		reason       string
		hasToolCalls bool
		want         api.FinishReason
	}{
		{"stop", false, api.FinishStop},
		{"", false, api.FinishStop},
		{"length", false, api.FinishLength},
		{"stop", true, api.FinishToolCalls},
		{"weird", false, api.FinishStop},
	}
	for _, tt := range tests {
		if got := mapDoneReason(tt.reason, tt.hasToolCalls); got != tt.want {
			t.Errorf("mapDoneReason(%q, %v) = %q, want %q", tt.reason, tt.hasToolCalls, got, tt.want)
		}
	}
}
