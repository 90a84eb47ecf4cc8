package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/retry"
)

const (
	// DefaultBaseURL is the Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com"

	// apiVersion pins the Messages API revision this adapter speaks.
	apiVersion = "2023-06-01"

	defaultTimeout = 120 * time.Second
)

// Options configures a Client.
type Options struct {
	// BaseURL overrides the API root. Empty means DefaultBaseURL.
	BaseURL string

	// APIKey is sent in the x-api-key header.
	APIKey string

	// Timeout applies to non-streaming requests. Zero means 120s.
	Timeout time.Duration

	// Retry controls retrying of idempotent calls.
	Retry retry.Config
}

// Client adapts the Anthropic Messages API to the Provider interface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retryCfg   retry.Config
}

// NewClient creates a Client for the Anthropic API.
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
		apiKey:     opts.APIKey,
		retryCfg:   opts.Retry,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "anthropic" }

// Capabilities returns what the Messages API supports.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Streaming:   true,
		ToolCalling: true,
		Vision:      true,
	}
}

// Complete performs non-streaming inference against /v1/messages.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	var out *provider.Response
	err = retry.Do(ctx, c.retryCfg, func() error {
		resp, err := c.do(ctx, http.MethodPost, "/v1/messages", body, false)
		if err != nil {
			if retry.Retryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		defer resp.Body.Close()

		var mr messagesResponse
		if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
			return retry.Permanent(api.NewServerError("failed to parse anthropic response: " + err.Error()))
		}
		out = translateResponse(&mr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream performs streaming inference. The returned channel is closed when
// the stream completes, errors, or the context is cancelled. Streams are
// never retried and the client timeout does not apply to them.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true

	body, err := json.Marshal(translateRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError("failed to marshal request: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	c.setHeaders(httpReq, true)

	streamClient := &http.Client{Transport: c.httpClient.Transport}
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, api.NewServerError("anthropic connection error: " + err.Error())
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
	resp, err := c.do(ctx, http.MethodGet, "/v1/models", nil, false)
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
		models = append(models, api.ModelInfo{ID: m.ID, Object: "model", OwnedBy: "anthropic"})
	}
	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, stream bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError("failed to create HTTP request: " + err.Error())
	}
	c.setHeaders(httpReq, stream)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, api.NewServerError("anthropic connection error: " + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
}

// mapHTTPError converts a non-2xx Anthropic response into an APIError.
func mapHTTPError(resp *http.Response) *api.APIError {
	message := ""
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil && len(data) > 0 {
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != nil && er.Error.Message != "" {
			message = er.Error.Message
		}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "invalid request to anthropic"
		}
		return api.NewInvalidRequestError("", message)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "anthropic authentication failed"
		}
		return api.NewServerError(message)
	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "anthropic resource not found"
		}
		return api.NewNotFoundError(message)
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "anthropic rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)
	// Anthropic uses 529 for overload, outside any named constant.
	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("anthropic server error (HTTP %d)", resp.StatusCode)
		}
		return api.NewServerError(message)
	default:
		if message == "" {
			message = fmt.Sprintf("unexpected anthropic error (HTTP %d)", resp.StatusCode)
		}
		return api.NewServerError(message)
	}
}
