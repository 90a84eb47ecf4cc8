package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/retry"
)

const defaultTimeout = 120 * time.Second

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. "https://api.openai.com".
	// The /v1/... paths are appended to it.
	BaseURL string

	// APIKey is sent as a Bearer token when non-empty.
	APIKey string

	// Name overrides the provider identifier. Defaults to "openai".
	Name string

	// Timeout applies to non-streaming requests. Zero means 120s.
	Timeout time.Duration

	// Retry controls retrying of idempotent calls. Zero value disables
	// retrying.
	Retry retry.Config

	// ModelMapper optionally rewrites the model name before sending it
	// to the backend (e.g. a LiteLLM alias map). Nil means pass-through.
	ModelMapper func(string) string

	// Capabilities overrides the default capability set.
	Capabilities *provider.Capabilities
}

// Client adapts an OpenAI-compatible Chat Completions backend to the
// Provider interface. It also serves the /v1/embeddings endpoint for the
// embedding layer.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	name        string
	retryCfg    retry.Config
	modelMapper func(string) string
	caps        provider.Capabilities
}

// NewClient creates a Client for an OpenAI-compatible backend.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	caps := provider.Capabilities{
		Streaming:   true,
		ToolCalling: true,
		Vision:      true,
		Embeddings:  true,
	}
	if opts.Capabilities != nil {
		caps = *opts.Capabilities
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		name:        name,
		retryCfg:    opts.Retry,
		modelMapper: opts.ModelMapper,
		caps:        caps,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return c.name }

// Capabilities returns what this backend supports.
func (c *Client) Capabilities() provider.Capabilities { return c.caps }

// Complete performs non-streaming inference. Transient backend failures
// (429, 5xx, connection errors) are retried per the configured policy.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false
	if c.modelMapper != nil {
		reqCopy.Model = c.modelMapper(reqCopy.Model)
	}

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	var out *provider.Response
	err = retry.Do(ctx, c.retryCfg, func() error {
		resp, err := c.doJSON(ctx, http.MethodPost, "/v1/chat/completions", body)
		if err != nil {
			if retry.Retryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		defer resp.Body.Close()

		var chatResp chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
			return retry.Permanent(api.NewServerError("failed to parse backend response: " + err.Error()))
		}
		translated, err := translateResponse(&chatResp)
		if err != nil {
			return retry.Permanent(err)
		}
		out = translated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream performs streaming inference. The returned channel is closed when
// the stream completes, errors, or the context is cancelled.
//
// The HTTP client timeout does not apply: a stream can legitimately outlive
// any fixed timeout, so lifetime control is the caller's context. Streams
// are never retried.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true
	if c.modelMapper != nil {
		reqCopy.Model = c.modelMapper(reqCopy.Model)
	}

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.authorize(httpReq)

	streamClient := &http.Client{Transport: c.httpClient.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseSSEStream(ctx, httpResp.Body, ch)
	}()

	return ch, nil
}

// ListModels queries /v1/models.
func (c *Client) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var mr modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, api.NewServerError("failed to parse models response: " + err.Error())
	}

	models := make([]api.ModelInfo, 0, len(mr.Data))
	for _, m := range mr.Data {
		models = append(models, api.ModelInfo{ID: m.ID, Object: m.Object, OwnedBy: m.OwnedBy})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Embed calls /v1/embeddings and returns one vector per input, in input
// order regardless of the order the backend reports.
func (c *Client) Embed(ctx context.Context, model string, input []string) ([][]float32, *api.Usage, error) {
	if c.modelMapper != nil {
		model = c.modelMapper(model)
	}
	body, err := json.Marshal(embeddingRequest{Model: model, Input: input})
	if err != nil {
		return nil, nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	var out [][]float32
	var usage *api.Usage
	err = retry.Do(ctx, c.retryCfg, func() error {
		resp, err := c.doJSON(ctx, http.MethodPost, "/v1/embeddings", body)
		if err != nil {
			if retry.Retryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		defer resp.Body.Close()

		var er embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return retry.Permanent(api.NewServerError("failed to parse embeddings response: " + err.Error()))
		}
		if len(er.Data) != len(input) {
			return retry.Permanent(api.NewModelError("backend returned wrong number of embeddings"))
		}

		out = make([][]float32, len(input))
		for _, e := range er.Data {
			if e.Index < 0 || e.Index >= len(out) {
				return retry.Permanent(api.NewModelError("backend returned out-of-range embedding index"))
			}
			out[e.Index] = e.Embedding
		}
		if er.Usage != nil {
			usage = &api.Usage{
				InputTokens: er.Usage.PromptTokens,
				TotalTokens: er.Usage.TotalTokens,
			}
		}
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

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
