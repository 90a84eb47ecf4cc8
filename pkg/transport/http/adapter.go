package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/embedding"
	"github.com/openconduit/conduit/pkg/storage"
	"github.com/openconduit/conduit/pkg/transport"
)

// ModelLister lists the models available from the configured backend.
// Satisfied by provider.Provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]api.ModelInfo, error)
}

// Adapter serves the conduit gateway API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	handler  transport.ChatHandler
	store    transport.ConversationStore // nil if stateless-only
	models   ModelLister                 // nil disables GET /v1/models
	embedder embedding.Embedder          // nil disables POST /v1/embeddings
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	MaxBodySize int64

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		MaxBodySize: 10 << 20, // 10 MB
		MetricsPath: "/metrics",
	}
}

// NewAdapter creates an HTTP adapter with the given ChatHandler and options.
// The ConversationStore, ModelLister, and Embedder are all optional; when
// nil, the corresponding endpoints report the operation as unavailable.
// Middleware is applied to the ChatHandler in the given order.
func NewAdapter(handler transport.ChatHandler, store transport.ConversationStore, models ModelLister, embedder embedding.Embedder, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}

	a := &Adapter{
		handler:  handler,
		store:    store,
		models:   models,
		embedder: embedder,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/chat", a.handleChat)
	a.mux.HandleFunc("POST /v1/chat/{id}/cancel", a.handleCancelChat)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("POST /v1/embeddings", a.handleEmbeddings)
	a.mux.HandleFunc("GET /v1/conversations", a.handleListConversations)
	a.mux.HandleFunc("GET /v1/conversations/{id}", a.handleGetConversation)
	a.mux.HandleFunc("DELETE /v1/conversations/{id}", a.handleDeleteConversation)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)

	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware propagates the X-Request-ID header. If present in
// the request it is forwarded into context; after the handler runs the
// request ID from context is echoed back in the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChat handles POST /v1/chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if apiErr := api.ValidateChatRequest(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if req.Stream {
		a.handleStreamingChat(w, r, &req)
		return
	}

	rw := newSSEResponseWriter(w, nil)
	if err := a.handler.Chat(r.Context(), &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleStreamingChat handles streaming POST requests (stream: true).
func (a *Adapter) handleStreamingChat(w http.ResponseWriter, r *http.Request, req *api.ChatRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	rw := newSSEResponseWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.handler.Chat(ctx, req, rw)

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}

	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCancelChat handles POST /v1/chat/{id}/cancel. Cancelling an
// unknown or already finished chat returns 404.
func (a *Adapter) handleCancelChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateChatID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed chat ID"),
			http.StatusBadRequest,
		)
		return
	}

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	transport.WriteAPIError(w, api.NewNotFoundError("chat "+id+" is not in flight"))
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	if a.models == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "model listing is not available"),
			http.StatusNotImplemented,
		)
		return
	}

	models, err := a.models.ListModels(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.ModelList{Object: "list", Data: models})
}

// handleEmbeddings handles POST /v1/embeddings.
func (a *Adapter) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if a.embedder == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "embeddings are not available (no embedder configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.EmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}
	if len(req.Input) == 0 {
		transport.WriteAPIError(w, api.NewInvalidRequestError("input", "input must not be empty"))
		return
	}

	vectors, usage, err := a.embedder.Embed(r.Context(), req.Input)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.EmbeddingResponse{
		Object:     "list",
		Model:      req.Model,
		Embeddings: vectors,
		Usage:      usage,
	})
}

// handleGetConversation handles GET /v1/conversations/{id}.
func (a *Adapter) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "conversation retrieval is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	conv, err := a.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("conversation "+id+" not found"))
		} else {
			a.writeStoreError(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// handleDeleteConversation handles DELETE /v1/conversations/{id}.
func (a *Adapter) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "conversation deletion is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	if err := a.store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("conversation "+id+" not found"))
		} else {
			a.writeStoreError(w, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListConversations handles GET /v1/conversations.
func (a *Adapter) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "conversation listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	result, err := a.store.ListConversations(r.Context(), opts)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleHealthz handles GET /healthz. Liveness only; always 200.
func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz handles GET /readyz. Reports 503 when the conversation
// store is configured but unreachable.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if a.store != nil {
		if err := a.store.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Model:  q.Get("model"),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeHandlerError writes an error response from the chat handler. If
// streaming has already started, it sends a chat.failed event. Otherwise
// it writes a standard JSON error response.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if rw.hasStartedStreaming() {
		failEvent := api.StreamEvent{
			Type: api.EventChatFailed,
			Response: &api.ChatResponse{
				Object: "chat.completion",
				Error:  apiErr,
			},
		}
		rw.WriteEvent(context.Background(), failEvent)
		return
	}

	transport.WriteAPIError(w, apiErr)
}

// writeStoreError maps a non-sentinel error to an API error response.
func (a *Adapter) writeStoreError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		transport.WriteAPIError(w, apiErr)
		return
	}
	transport.WriteAPIError(w, api.NewServerError(err.Error()))
}
