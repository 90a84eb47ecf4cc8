package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/transport"
)

// Engine orchestrates chat completions between the transport layer and
// the provider backend: it resolves conversation history, runs the
// bounded tool loop, and persists the completed exchange.
type Engine struct {
	provider provider.Provider
	store    transport.ConversationStore // nil for stateless operation
	registry *tools.Registry             // nil when no server-side tools
	cfg      Config
}

var _ transport.ChatHandler = (*Engine)(nil)

// New creates an Engine. The provider must not be nil; store and registry
// are optional.
func New(p provider.Provider, store transport.ConversationStore, registry *tools.Registry, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{
		provider: p,
		store:    store,
		registry: registry,
		cfg:      cfg,
	}, nil
}

// Chat handles one chat completion request, streaming or not.
func (e *Engine) Chat(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	if req.Model == "" {
		if e.cfg.DefaultModel == "" {
			return api.NewInvalidRequestError("model", "model is required")
		}
		req.Model = e.cfg.DefaultModel
	}

	if apiErr := provider.ValidateCapabilities(e.provider.Capabilities(), req); apiErr != nil {
		return apiErr
	}

	messages, err := e.resolveMessages(ctx, req)
	if err != nil {
		return err
	}

	toolDefs := req.Tools
	if e.registry != nil {
		toolDefs = mergeTools(req.Tools, e.registry.Definitions())
	}

	provReq := translateRequest(req, messages, toolDefs)

	if req.Stream {
		return e.runLoopStreaming(ctx, req, provReq, w)
	}
	return e.runLoop(ctx, req, provReq, w)
}

// newResponse builds the response skeleton shared by both loop paths.
func newResponse(req *api.ChatRequest) *api.ChatResponse {
	return &api.ChatResponse{
		ID:           api.NewChatID(),
		Object:       "chat.completion",
		CreatedAt:    time.Now().Unix(),
		Model:        req.Model,
		Conversation: req.Conversation,
	}
}

// shouldPersist reports whether a finished response represents an
// exchange worth appending to the conversation. Cancelled and failed
// chats are not recorded.
func shouldPersist(reason api.FinishReason) bool {
	switch reason {
	case api.FinishStop, api.FinishLength, api.FinishToolCalls, api.FinishContentFilter:
		return true
	}
	return false
}

// runsParallel resolves the parallel_tool_calls setting; parallel
// execution is the default.
func runsParallel(req *api.ChatRequest) bool {
	if req.ParallelToolCalls == nil {
		return true
	}
	return *req.ParallelToolCalls
}
