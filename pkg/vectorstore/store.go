package vectorstore

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("vectorstore: document not found")

// Document is an embedded text chunk stored for retrieval.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"vector"`
}

// Match pairs a document with its similarity score to a query vector.
type Match struct {
	Document Document `json:"document"`
	Score    float32  `json:"score"`
}

// Store indexes documents by their embedding vectors.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add upserts documents. Documents without an ID are assigned one.
	Add(ctx context.Context, docs []Document) error

	// Search returns the k documents closest to the query vector,
	// ordered by cosine similarity descending.
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Close releases backend resources.
	Close() error
}

// EnsureID assigns a UUID when the document has no ID.
func EnsureID(doc *Document) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
}

// Cosine computes the cosine similarity of two vectors. Mismatched
// lengths or zero vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
