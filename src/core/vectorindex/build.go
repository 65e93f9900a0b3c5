package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
)

const (
	DefaultBatchSize   = 16
	DefaultConcurrency = 4
)

// BuildOptions bounds the embedding fan-out of Build.
type BuildOptions struct {
	// BatchSize is the number of chunk texts sent per embedder call.
	BatchSize int
	// Concurrency caps the embedder calls in flight.
	Concurrency int
	// Progress, when set, is called with the number of chunks embedded by each finished batch.
	Progress func(n int)
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Build embeds every chunk and returns a new index. Either all chunks are embedded or Build
// fails with an *rag.EmbeddingError; a partial index is never returned.
func Build(ctx context.Context, embedder embeddings.Embedder, chunks []chunker.Chunk, opts BuildOptions) (*Index, error) {
	if len(chunks) == 0 {
		return Empty(), nil
	}
	opts = opts.withDefaults()

	vectors := make([][]float32, len(chunks))
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(chunks); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batchStart, batchEnd := start, end
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, 0, batchEnd-batchStart)
			for _, c := range chunks[batchStart:batchEnd] {
				texts = append(texts, c.Text)
			}
			out, err := embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return &rag.EmbeddingError{Op: fmt.Sprintf("chunks %d-%d", batchStart, batchEnd-1), Err: err}
			}
			if len(out) != len(texts) {
				return &rag.EmbeddingError{
					Op:  fmt.Sprintf("chunks %d-%d", batchStart, batchEnd-1),
					Err: fmt.Errorf("received %d vectors for %d texts", len(out), len(texts)),
				}
			}
			for i, v := range out {
				if len(v) == 0 {
					return &rag.EmbeddingError{
						Op:  fmt.Sprintf("chunk %d", batchStart+i),
						Err: errors.New("received an empty vector"),
					}
				}
			}
			copy(vectors[batchStart:batchEnd], out)
			if opts.Progress != nil {
				progressMu.Lock()
				opts.Progress(len(texts))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newIndex(vectors, chunks)
}

// Fold builds one index per batch and merges them in order, starting from an empty index.
func Fold(ctx context.Context, embedder embeddings.Embedder, batches [][]chunker.Chunk, opts BuildOptions) (*Index, error) {
	acc := Empty()
	for i, batch := range batches {
		next, err := Build(ctx, embedder, batch, opts)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		if acc, err = Merge(acc, next); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return acc, nil
}
