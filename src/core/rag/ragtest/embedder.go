// Package ragtest provides deterministic embedders for tests.
package ragtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

// ErrEmbedderDown is returned by FailingEmbedder.
var ErrEmbedderDown = errors.New("embedder unavailable")

// HashEmbedder maps text to a bag-of-words vector by hashing lower-cased words into Dim buckets.
// Texts sharing words get a positive cosine similarity.
type HashEmbedder struct {
	Dim   int
	calls atomic.Int64
}

var _ embeddings.Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

// Calls returns the number of texts embedded so far.
func (e *HashEmbedder) Calls() int64 {
	return e.calls.Load()
}

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	v := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.Dim)]++
	}
	return v, nil
}

// FailingEmbedder fails every call after the first FailAfter texts.
type FailingEmbedder struct {
	Inner     embeddings.Embedder
	FailAfter int64
	seen      atomic.Int64
}

var _ embeddings.Embedder = (*FailingEmbedder)(nil)

func (e *FailingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.seen.Add(int64(len(texts))) > e.FailAfter {
		return nil, ErrEmbedderDown
	}
	return e.Inner.EmbedDocuments(ctx, texts)
}

func (e *FailingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.seen.Add(1) > e.FailAfter {
		return nil, ErrEmbedderDown
	}
	return e.Inner.EmbedQuery(ctx, text)
}

// FixedEmbedder returns the vector registered for each text, and Default otherwise.
type FixedEmbedder struct {
	Vectors map[string][]float32
	Default []float32
}

var _ embeddings.Embedder = FixedEmbedder{}

func (e FixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedQuery(ctx, t)
	}
	return out, nil
}

func (e FixedEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return append([]float32(nil), e.Default...), nil
}
