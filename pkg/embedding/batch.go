package embedding

import (
	"context"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/openconduit/conduit/pkg/api"
)

const defaultBatchSize = 64

// Batcher splits large inputs into fixed-size batches and embeds them
// concurrently over a worker pool. Results are reassembled in input order.
// It implements Embedder and can wrap any backend client.
type Batcher struct {
	inner     Embedder
	pool      *ants.Pool
	batchSize int
}

// NewBatcher wraps an Embedder with batched concurrent execution.
// batchSize <= 0 uses the default; workers <= 0 sizes the pool to half
// the CPUs.
func NewBatcher(inner Embedder, batchSize, workers int) (*Batcher, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Batcher{inner: inner, pool: pool, batchSize: batchSize}, nil
}

// Embed fans batches out over the pool. Each batch writes its vectors
// into a preallocated slot so input order survives concurrent completion.
// The first batch error cancels the remaining work.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, *api.Usage, error) {
	if len(texts) <= b.batchSize {
		return b.inner.Embed(ctx, texts)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	total := &api.Usage{}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		start, end := start, end

		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			vecs, usage, err := b.inner.Embed(ctx, texts[start:end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
				return
			}

			copy(out[start:end], vecs)
			if usage != nil {
				mu.Lock()
				total.Add(*usage)
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
			cancel()
			break
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, nil, firstErr
	}
	return out, total, nil
}

// Dimensions reports the wrapped embedder's dimensionality.
func (b *Batcher) Dimensions() int { return b.inner.Dimensions() }

// Close releases the pool and the wrapped embedder.
func (b *Batcher) Close() error {
	b.pool.Release()
	return b.inner.Close()
}
