package retriever

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
	"coursematch/src/core/vectorindex"
)

// DefaultK is the number of chunks returned when the caller does not ask for a specific count.
const DefaultK = 4

// Service answers similarity queries against the serving index. The embedder must be the model
// the index was built with; this is not checked here.
type Service struct {
	holder   *vectorindex.Holder
	embedder embeddings.Embedder
	k        int
}

type Option func(s *Service)

// WithK changes the default number of retrieved chunks.
func WithK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.k = k
		}
	}
}

func NewService(holder *vectorindex.Holder, embedder embeddings.Embedder, opts ...Option) *Service {
	s := &Service{
		holder:   holder,
		embedder: embedder,
		k:        DefaultK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve embeds query and returns the k nearest chunks, most similar first. k <= 0 uses the
// service default.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]chunker.Chunk, error) {
	results, err := s.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	chunks := make([]chunker.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return chunks, nil
}

// Search is Retrieve with scores kept.
func (s *Service) Search(ctx context.Context, query string, k int) ([]vectorindex.Result, error) {
	if k <= 0 {
		k = s.k
	}
	idx := s.holder.Current()

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &rag.EmbeddingError{Op: "query", Err: err}
	}
	return idx.Search(vec, k)
}

// Index returns the index currently served.
func (s *Service) Index() *vectorindex.Index {
	return s.holder.Current()
}

// Meta returns the build metadata of the index currently served.
func (s *Service) Meta() vectorindex.Meta {
	return s.holder.Meta()
}
