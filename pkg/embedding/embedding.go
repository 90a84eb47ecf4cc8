package embedding

import (
	"context"
	"math"

	"github.com/openconduit/conduit/pkg/api"
)

// Embedder generates vector embeddings from text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// Embed generates one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, *api.Usage, error)

	// Dimensions returns the vector dimensionality, or 0 if unknown
	// before the first call.
	Dimensions() int

	// Close releases embedder resources.
	Close() error
}

// Normalize scales a vector to unit length. Zero vectors are returned
// unchanged. Normalized vectors let cosine similarity reduce to a dot
// product.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Normalized wraps an Embedder so every vector it returns has unit length.
type Normalized struct {
	Inner Embedder
}

// Embed delegates to the inner embedder and normalizes each vector.
func (n Normalized) Embed(ctx context.Context, texts []string) ([][]float32, *api.Usage, error) {
	vectors, usage, err := n.Inner.Embed(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range vectors {
		vectors[i] = Normalize(v)
	}
	return vectors, usage, nil
}

// Dimensions reports the inner embedder's dimensionality.
func (n Normalized) Dimensions() int { return n.Inner.Dimensions() }

// Close closes the inner embedder.
func (n Normalized) Close() error { return n.Inner.Close() }
