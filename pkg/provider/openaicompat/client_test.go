package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/retry"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "test-key"})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientComplete(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Stream {
			t.Error("Complete must not request streaming")
		}

		content := "pong"
		json.NewEncoder(w).Encode(chatResponse{
			ID:    "chat_srv",
			Model: body.Model,
			Choices: []chatChoice{
				{Message: chatResponseMessage{Role: "assistant", Content: &content}, FinishReason: "stop"},
			},
			Usage: &chatUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		})
	}))

	resp, err := c.Complete(context.Background(), &provider.Request{
		Model:    "gpt-4o",
		Messages: []api.Message{{Role: api.RoleUser, Content: "ping"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Content != "pong" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.ID != "chat_srv" {
		t.Errorf("ID = %q", resp.ID)
	}
}

func TestClientCompleteRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		content := "ok"
		json.NewEncoder(w).Encode(chatResponse{
			ID: "chat_r",
			Choices: []chatChoice{
				{Message: chatResponseMessage{Content: &content}, FinishReason: "stop"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	defer c.Close()

	resp, err := c.Complete(context.Background(), &provider.Request{
		Model:    "m",
		Messages: []api.Message{{Role: api.RoleUser, Content: "x"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2", calls.Load())
	}
}

func TestClientCompleteDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unknown model"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	defer c.Close()

	_, err := c.Complete(context.Background(), &provider.Request{
		Model:    "bogus",
		Messages: []api.Message{{Role: api.RoleUser, Content: "x"}},
	})
	if err == nil {
		t.Fatal("Complete() should fail on 400")
	}
	var apiErr *api.APIError
	if !asAPIError(err, &apiErr) || apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error = %v, want invalid_request", err)
	}
	if apiErr.Message != "unknown model" {
		t.Errorf("Message = %q, want backend message", apiErr.Message)
	}
	if calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestClientStream(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		var body chatRequest
		json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Error("Stream must request streaming")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"id\":\"chat_s\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		w.Write([]byte("data: {\"id\":\"chat_s\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))

	events, err := c.Stream(context.Background(), &provider.Request{
		Model:    "m",
		Messages: []api.Message{{Role: api.RoleUser, Content: "x"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	resp, err := provider.Drain(events)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if resp.Message.Content != "hi" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
}

func TestClientStreamErrorStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))

	_, err := c.Stream(context.Background(), &provider.Request{
		Model:    "m",
		Messages: []api.Message{{Role: api.RoleUser, Content: "x"}},
	})
	var apiErr *api.APIError
	if !asAPIError(err, &apiErr) || apiErr.Type != api.ErrorTypeTooManyRequests {
		t.Fatalf("error = %v, want too_many_requests", err)
	}
}

func TestClientListModels(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(modelsResponse{
			Object: "list",
			Data: []modelEntry{
				{ID: "zeta", Object: "model", OwnedBy: "test"},
				{ID: "alpha", Object: "model", OwnedBy: "test"},
			},
		})
	}))

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].ID != "alpha" || models[1].ID != "zeta" {
		t.Errorf("models not sorted: %+v", models)
	}
}

func TestClientEmbed(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body embeddingRequest
		json.NewDecoder(r.Body).Decode(&body)

		// Reply out of order to verify index-based reassembly.
		json.NewEncoder(w).Encode(embeddingResponse{
			Object: "list",
			Model:  body.Model,
			Data: []embeddingEntry{
				{Index: 1, Embedding: []float32{0.2}},
				{Index: 0, Embedding: []float32{0.1}},
			},
			Usage: &chatUsage{PromptTokens: 3, TotalTokens: 3},
		})
	}))

	vecs, usage, err := c.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][0] != 0.2 {
		t.Errorf("vectors not in input order: %v", vecs)
	}
	if usage == nil || usage.InputTokens != 3 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestClientModelMapper(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "backend/gpt-4o" {
			t.Errorf("mapped model = %q", body.Model)
		}
		content := "ok"
		json.NewEncoder(w).Encode(chatResponse{
			ID: "chat_m",
			Choices: []chatChoice{
				{Message: chatResponseMessage{Content: &content}, FinishReason: "stop"},
			},
		})
	}))
	c.modelMapper = func(m string) string { return "backend/" + m }

	if _, err := c.Complete(context.Background(), &provider.Request{
		Model:    "gpt-4o",
		Messages: []api.Message{{Role: api.RoleUser, Content: "x"}},
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func asAPIError(err error, target **api.APIError) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*api.APIError)
	if ok {
		*target = e
	}
	return ok
}
