package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/retry"
)

const (
	// DefaultBaseURL is the standard local Ollama address.
	DefaultBaseURL = "http://localhost:11434"

	// Local inference is slow; allow generous time for non-streaming calls.
	defaultTimeout = 300 * time.Second

	maxLineSize = 1 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL is the Ollama server root. Empty means DefaultBaseURL.
	BaseURL string

	// Timeout applies to non-streaming requests. Zero means 300s.
	Timeout time.Duration

	// Retry controls retrying of idempotent calls.
	Retry retry.Config
}

// Client adapts a local Ollama server to the Provider interface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retryCfg   retry.Config
}

// NewClient creates a Client for an Ollama server.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryCfg:   opts.Retry,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "ollama" }

// Capabilities returns what Ollama supports.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Streaming:   true,
		ToolCalling: true,
		Vision:      true,
		Embeddings:  true,
	}
}

// Complete performs non-streaming inference against /api/chat.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	var out *provider.Response
	err = retry.Do(ctx, c.retryCfg, func() error {
		resp, err := c.post(ctx, "/api/chat", body, "")
		if err != nil {
			if retry.Retryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		defer resp.Body.Close()

		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return retry.Permanent(api.NewServerError("failed to parse ollama response: " + err.Error()))
		}

		toolCalls := translateToolCalls(cr.Message.ToolCalls)
		out = &provider.Response{
			ID:      api.NewChatID(),
			Model:   cr.Model,
			Created: parseCreatedAt(cr.CreatedAt),
			Message: api.Message{
				Role:      api.RoleAssistant,
				Content:   cr.Message.Content,
				ToolCalls: toolCalls,
			},
			FinishReason: mapDoneReason(cr.DoneReason, len(toolCalls) > 0),
			Usage: api.Usage{
				InputTokens:  cr.PromptEvalCount,
				OutputTokens: cr.EvalCount,
				TotalTokens:  cr.PromptEvalCount + cr.EvalCount,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream performs streaming inference. Ollama streams newline-delimited
// JSON objects; the object with done=true carries the finish reason and
// token counters. The returned channel is closed when the stream ends.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Streams must not be bounded by the client timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, api.NewServerError("ollama connection error: " + err.Error())
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseJSONLines(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

// sendEvent delivers ev unless the context is cancelled first. A false
// return means the consumer is gone; the producer must stop rather than
// block on a full channel forever.
func sendEvent(ctx context.Context, ch chan<- provider.Event, ev provider.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// parseJSONLines reads one chatResponse per line, translating each into
// provider events. The caller owns the channel.
func parseJSONLines(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	// Generated once per stream so all events share an identity.
	streamID := api.NewChatID()
	toolCallIndex := 0

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var cr chatResponse
		if err := json.Unmarshal(line, &cr); err != nil {
			slog.Warn("skipping malformed ollama stream line", "error", err.Error())
			continue
		}

		ident := provider.Event{
			ID:      streamID,
			Model:   cr.Model,
			Created: parseCreatedAt(cr.CreatedAt),
		}

		if cr.Message.Content != "" {
			ev := ident
			ev.Type = provider.EventTextDelta
			ev.Delta = cr.Message.Content
			if !sendEvent(ctx, ch, ev) {
				return
			}
		}

		// Ollama delivers each tool call whole in a single line.
		for _, tc := range translateToolCalls(cr.Message.ToolCalls) {
			ev := ident
			ev.Type = provider.EventToolCallDone
			ev.ToolCallIndex = toolCallIndex
			ev.ToolCallID = tc.ID
			ev.FunctionName = tc.Function.Name
			ev.Delta = tc.Function.Arguments
			if !sendEvent(ctx, ch, ev) {
				return
			}
			toolCallIndex++
		}

		if cr.Done {
			ev := ident
			ev.Type = provider.EventDone
			ev.FinishReason = mapDoneReason(cr.DoneReason, toolCallIndex > 0)
			ev.Usage = &api.Usage{
				InputTokens:  cr.PromptEvalCount,
				OutputTokens: cr.EvalCount,
				TotalTokens:  cr.PromptEvalCount + cr.EvalCount,
			}
			sendEvent(ctx, ch, ev)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		sendEvent(ctx, ch, provider.Event{
			Type: provider.EventError,
			Err:  api.NewServerError("ollama stream read error: " + err.Error()),
		})
	}
}

// ListModels queries /api/tags for installed models.
func (c *Client) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, api.NewServerError("ollama connection error: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapHTTPError(resp)
	}

	var tr tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, api.NewServerError("failed to parse tags response: " + err.Error())
	}

	models := make([]api.ModelInfo, 0, len(tr.Models))
	for _, m := range tr.Models {
		models = append(models, api.ModelInfo{ID: m.Name, Object: "model", OwnedBy: "ollama"})
	}
	return models, nil
}

// Embed calls /api/embed and returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, model string, input []string) ([][]float32, *api.Usage, error) {
	body, err := json.Marshal(embedRequest{Model: model, Input: input})
	if err != nil {
		return nil, nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	var out [][]float32
	var usage *api.Usage
	err = retry.Do(ctx, c.retryCfg, func() error {
		resp, err := c.post(ctx, "/api/embed", body, "")
		if err != nil {
			if retry.Retryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		defer resp.Body.Close()

		var er embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return retry.Permanent(api.NewServerError("failed to parse embed response: " + err.Error()))
		}
		if len(er.Embeddings) != len(input) {
			return retry.Permanent(api.NewModelError("ollama returned wrong number of embeddings"))
		}
		out = er.Embeddings
		usage = &api.Usage{InputTokens: er.PromptEvalCount, TotalTokens: er.PromptEvalCount}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, usage, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, accept string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, api.NewServerError("ollama connection error: " + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp)
	}
	return resp, nil
}

// mapHTTPError converts a non-2xx Ollama response into an APIError.
// A 404 with a "not found" message usually means the model is not pulled.
func mapHTTPError(resp *http.Response) *api.APIError {
	message := ""
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil && len(data) > 0 {
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			message = er.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "invalid request to ollama"
		}
		return api.NewInvalidRequestError("", message)
	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "model not found; pull it first"
		}
		return api.NewNotFoundError(message)
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "ollama is overloaded"
		}
		return api.NewTooManyRequestsError(message)
	default:
		if message == "" {
			message = "ollama server error"
		}
		return api.NewServerError(message)
	}
}
