package vectorstore

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a brute-force in-memory index. Every search scans all
// documents, which is fine for the small corpora it is meant for (tests,
// single-node deployments, local development).
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Add upserts documents, assigning IDs where missing.
func (s *MemoryStore) Add(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range docs {
		EnsureID(&docs[i])
		s.docs[docs[i].ID] = docs[i]
	}
	return nil
}

// Search scans all documents and returns the top k by cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.docs))
	for _, doc := range s.docs {
		matches = append(matches, Match{Document: doc, Score: Cosine(vector, doc.Vector)})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes documents by ID.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
