package embedding

import (
	"context"
	"sync"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/provider/ollama"
	"github.com/openconduit/conduit/pkg/provider/openaicompat"
)

// OpenAIEmbedder serves embeddings from an OpenAI-compatible backend,
// sharing the chat adapter's HTTP client.
type OpenAIEmbedder struct {
	client *openaicompat.Client
	model  string

	mu   sync.Mutex
	dims int
}

// NewOpenAI creates an Embedder for the given model on an existing
// OpenAI-compatible client.
func NewOpenAI(client *openaicompat.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed generates one vector per input, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, *api.Usage, error) {
	vecs, usage, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, nil, err
	}
	e.recordDims(vecs)
	return vecs, usage, nil
}

// Dimensions returns the vector size observed on the first call, 0 before.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

func (e *OpenAIEmbedder) recordDims(vecs [][]float32) {
	if len(vecs) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
}

// Close is a no-op; the underlying client is owned by the provider layer.
func (e *OpenAIEmbedder) Close() error { return nil }

// OllamaEmbedder serves embeddings from a local Ollama server.
type OllamaEmbedder struct {
	client *ollama.Client
	model  string

	mu   sync.Mutex
	dims int
}

// NewOllama creates an Embedder for the given model on an existing
// Ollama client.
func NewOllama(client *ollama.Client, model string) *OllamaEmbedder {
	return &OllamaEmbedder{client: client, model: model}
}

// Embed generates one vector per input, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, *api.Usage, error) {
	vecs, usage, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, nil, err
	}
	if len(vecs) > 0 {
		e.mu.Lock()
		if e.dims == 0 {
			e.dims = len(vecs[0])
		}
		e.mu.Unlock()
	}
	return vecs, usage, nil
}

// Dimensions returns the vector size observed on the first call, 0 before.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

// Close is a no-op; the underlying client is owned by the provider layer.
func (e *OllamaEmbedder) Close() error { return nil }
