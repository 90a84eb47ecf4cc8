// Package ingest turns raw text into searchable vector store documents.
// Text is split into overlapping chunks, embedded in batches, and upserted
// into a vectorstore.Store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openconduit/conduit/pkg/embedding"
	"github.com/openconduit/conduit/pkg/vectorstore"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Pipeline chunks, embeds, and stores documents.
type Pipeline struct {
	embedder embedding.Embedder
	store    vectorstore.Store

	chunkSize    int
	chunkOverlap int
	normalize    bool
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChunking sets the chunk size and overlap in runes. Overlap must be
// smaller than size.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) {
		if size > 0 {
			p.chunkSize = size
		}
		if overlap >= 0 && overlap < p.chunkSize {
			p.chunkOverlap = overlap
		}
	}
}

// WithNormalize stores unit-length vectors, letting backends that compute
// dot products report true cosine scores.
func WithNormalize(on bool) Option {
	return func(p *Pipeline) { p.normalize = on }
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates an ingestion pipeline over an embedder and a store.
func New(embedder embedding.Embedder, store vectorstore.Store, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: store is required")
	}

	p := &Pipeline{
		embedder:     embedder,
		store:        store,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		normalize:    true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ingest chunks the text, embeds every chunk, and upserts the resulting
// documents. The given metadata is attached to each chunk along with its
// chunk index. Returns the stored documents.
func (p *Pipeline) Ingest(ctx context.Context, text string, metadata map[string]string) ([]vectorstore.Document, error) {
	chunks := Chunk(text, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors, usage, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		vec := vectors[i]
		if p.normalize {
			vec = embedding.Normalize(vec)
		}

		meta := make(map[string]string, len(metadata)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk"] = fmt.Sprint(i)

		docs[i] = vectorstore.Document{
			Content:  chunk,
			Metadata: meta,
			Vector:   vec,
		}
	}

	if err := p.store.Add(ctx, docs); err != nil {
		return nil, fmt.Errorf("storing documents: %w", err)
	}

	if usage != nil {
		p.logger.Debug("ingested document",
			"chunks", len(chunks),
			"tokens", usage.TotalTokens)
	}
	return docs, nil
}

// Chunk splits text into rune chunks of at most size with the given
// overlap between consecutive chunks. Whitespace-only chunks are dropped.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []string

	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
