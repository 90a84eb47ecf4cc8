// Package retrieval provides the built-in retrieval tool: it embeds the
// model's query and searches a vector store, so the engine loop can ground
// answers in indexed documents.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openconduit/conduit/pkg/api"
	"github.com/openconduit/conduit/pkg/embedding"
	"github.com/openconduit/conduit/pkg/tools"
	"github.com/openconduit/conduit/pkg/vectorstore"
)

const toolName = "retrieval"

// toolParametersJSON is the JSON Schema for the retrieval tool parameters.
var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "The search query to find relevant documents"
		},
		"max_results": {
			"type": "integer",
			"description": "Maximum number of documents to return"
		}
	},
	"required": ["query"]
}`)

var (
	queryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conduit_retrieval_queries_total",
			Help: "Total retrieval tool queries",
		},
		[]string{"status"},
	)
	queryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conduit_retrieval_query_duration_seconds",
			Help:    "Retrieval query duration including embedding",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(queryCount, queryLatency)
}

// Executor serves the retrieval tool over one embedder and one store.
type Executor struct {
	embedder   embedding.Embedder
	store      vectorstore.Store
	maxResults int
	minScore   float32
}

var _ tools.Executor = (*Executor)(nil)

// Options configures a retrieval Executor.
type Options struct {
	// MaxResults caps the documents returned per query. Default 5.
	MaxResults int

	// MinScore drops matches below this similarity. Default 0 keeps all.
	MinScore float32
}

// New creates a retrieval executor.
func New(embedder embedding.Embedder, store vectorstore.Store, opts Options) (*Executor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("retrieval: store is required")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	return &Executor{
		embedder:   embedder,
		store:      store,
		maxResults: opts.MaxResults,
		minScore:   opts.MinScore,
	}, nil
}

// Name identifies the executor in logs and metrics.
func (e *Executor) Name() string { return toolName }

// Tools returns the retrieval tool definition.
func (e *Executor) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Search indexed documents for content relevant to a query",
			Parameters:  toolParametersJSON,
		},
	}
}

// CanExecute reports whether this executor handles the named tool.
func (e *Executor) CanExecute(name string) bool {
	return name == toolName
}

type retrievalArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// retrievalResult is the JSON shape fed back to the model per match.
type retrievalResult struct {
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Execute embeds the query and returns the matching documents as JSON.
func (e *Executor) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	start := time.Now()

	var args retrievalArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		queryCount.WithLabelValues("error").Inc()
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("invalid arguments: %v", err),
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(args.Query) == "" {
		queryCount.WithLabelValues("error").Inc()
		return &tools.Result{
			CallID:  call.ID,
			Output:  "query must not be empty",
			IsError: true,
		}, nil
	}

	k := e.maxResults
	if args.MaxResults > 0 && args.MaxResults < k {
		k = args.MaxResults
	}

	vectors, _, err := e.embedder.Embed(ctx, []string{args.Query})
	if err != nil {
		queryCount.WithLabelValues("error").Inc()
		queryLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("embedding query: %v", err),
			IsError: true,
		}, nil
	}
	if len(vectors) != 1 {
		queryCount.WithLabelValues("error").Inc()
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("embedder returned %d vectors for one query", len(vectors)),
			IsError: true,
		}, nil
	}

	matches, err := e.store.Search(ctx, vectors[0], k)
	if err != nil {
		queryCount.WithLabelValues("error").Inc()
		queryLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("searching documents: %v", err),
			IsError: true,
		}, nil
	}

	results := make([]retrievalResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < e.minScore {
			continue
		}
		results = append(results, retrievalResult{
			Content:  m.Document.Content,
			Score:    m.Score,
			Metadata: m.Document.Metadata,
		})
	}

	output, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		queryCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("marshaling results: %w", err)
	}

	queryCount.WithLabelValues("ok").Inc()
	queryLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	return &tools.Result{CallID: call.ID, Output: string(output)}, nil
}

// Close releases the store. The embedder is shared with other components
// and stays open; its owner closes it.
func (e *Executor) Close() error {
	return e.store.Close()
}
