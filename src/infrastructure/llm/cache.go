package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
)

// CachedEmbedder memoises query embeddings. Document batches pass straight through since
// they are embedded once per build.
type CachedEmbedder struct {
	inner embeddings.Embedder
	cache *lru.Cache[string, []float32]
}

var _ embeddings.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner embeddings.Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("embedding cache size must be greater than zero, got %d", size)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return cloneVector(v), nil
	}
	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) > 0 {
		c.cache.Add(key, cloneVector(v))
	}
	return v, nil
}

// Len reports the number of cached queries.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
