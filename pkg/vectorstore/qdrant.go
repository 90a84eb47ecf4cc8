package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// QdrantStore talks to a Qdrant instance over its HTTP API. One store maps
// to one collection, created on first use with cosine distance.
type QdrantStore struct {
	baseURL    string
	collection string
	dimensions int
	httpClient *http.Client

	mu      sync.Mutex
	ensured bool
}

var _ Store = (*QdrantStore)(nil)

// NewQdrant creates a store for the named collection. The collection is
// created lazily with the given vector dimensionality.
func NewQdrant(url, collection string, dimensions int) *QdrantStore {
	return &QdrantStore{
		baseURL:    strings.TrimRight(url, "/"),
		collection: collection,
		dimensions: dimensions,
		httpClient: &http.Client{},
	}
}

// ensureCollection creates the collection if it does not exist yet.
// PUT /collections/{name} with {"vectors": {"size": dims, "distance": "Cosine"}}
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimensions,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)

	status, respBody, err := s.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant create collection request failed: %w", err)
	}
	// 409 means the collection already exists, which is fine.
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("qdrant create collection returned status %d: %s", status, respBody)
	}

	s.ensured = true
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Add upserts documents as Qdrant points. Content and metadata go into
// the point payload; metadata keys are stored flat next to "content".
// PUT /collections/{name}/points
func (s *QdrantStore) Add(ctx context.Context, docs []Document) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]qdrantPoint, 0, len(docs))
	for i := range docs {
		EnsureID(&docs[i])
		payload := map[string]any{"content": docs[i].Content}
		for k, v := range docs[i].Metadata {
			if k == "content" {
				continue
			}
			payload[k] = v
		}
		points = append(points, qdrantPoint{
			ID:      docs[i].ID,
			Vector:  docs[i].Vector,
			Payload: payload,
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, s.collection)
	status, respBody, err := s.do(ctx, http.MethodPut, url, map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("qdrant upsert request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert returned status %d: %s", status, respBody)
	}
	return nil
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	WithVector  bool      `json:"with_vector"`
}

type qdrantSearchResponse struct {
	Result []qdrantSearchResult `json:"result"`
}

type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

// Search performs a nearest-neighbor search in the collection.
// POST /collections/{name}/points/search
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	searchReq := qdrantSearchRequest{
		Vector:      vector,
		Limit:       k,
		WithPayload: true,
		WithVector:  true,
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection)

	status, respBody, err := s.do(ctx, http.MethodPost, url, searchReq)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search returned status %d: %s", status, respBody)
	}

	var searchResp qdrantSearchResponse
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	matches := make([]Match, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		doc := Document{
			ID:       fmt.Sprintf("%v", r.ID),
			Metadata: make(map[string]string),
			Vector:   r.Vector,
		}
		if content, ok := r.Payload["content"].(string); ok {
			doc.Content = content
		}
		for key, v := range r.Payload {
			if key == "content" {
				continue
			}
			if str, ok := v.(string); ok {
				doc.Metadata[key] = str
			}
		}
		matches = append(matches, Match{Document: doc, Score: r.Score})
	}
	return matches, nil
}

// Delete removes points by ID.
// POST /collections/{name}/points/delete
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.baseURL, s.collection)
	status, respBody, err := s.do(ctx, http.MethodPost, url, map[string]any{"points": ids})
	if err != nil {
		return fmt.Errorf("qdrant delete request failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant delete returned status %d: %s", status, respBody)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (s *QdrantStore) Close() error { return nil }

func (s *QdrantStore) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
