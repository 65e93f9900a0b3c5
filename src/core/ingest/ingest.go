// Package ingest turns loaded documents into a vector index.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tmc/langchaingo/embeddings"

	"coursematch/src/core/chunker"
	"coursematch/src/core/vectorindex"
	"coursematch/src/log"
)

// Stats summarises one ingest run.
type Stats struct {
	Documents      int
	EmptyDocuments int
	Chunks         int
	Entries        int
	Elapsed        time.Duration
}

type Pipeline struct {
	splitter *chunker.Splitter
	embedder embeddings.Embedder
	opts     vectorindex.BuildOptions
}

func NewPipeline(splitter *chunker.Splitter, embedder embeddings.Embedder, opts vectorindex.BuildOptions) *Pipeline {
	return &Pipeline{splitter: splitter, embedder: embedder, opts: opts}
}

// Split chunks every document, one batch per document.
func (p *Pipeline) Split(docs []chunker.Document) [][]chunker.Chunk {
	batches := make([][]chunker.Chunk, 0, len(docs))
	for _, doc := range docs {
		batches = append(batches, p.splitter.Split(doc))
	}
	return batches
}

// Run chunks docs and folds the per-document batches into one index. The returned index
// holds exactly one entry per chunk.
func (p *Pipeline) Run(ctx context.Context, docs []chunker.Document) (*vectorindex.Index, Stats, error) {
	start := time.Now()
	stats := Stats{Documents: len(docs)}

	batches := p.Split(docs)
	for i, b := range batches {
		if len(b) == 0 {
			stats.EmptyDocuments++
			log.Debug("document produced no chunks", "source", docs[i].SourceID)
		}
		stats.Chunks += len(b)
	}
	log.Info("documents chunked", "documents", stats.Documents, "chunks", stats.Chunks)

	idx, err := vectorindex.Fold(ctx, p.embedder, batches, p.opts)
	if err != nil {
		return nil, stats, fmt.Errorf("build index: %w", err)
	}
	stats.Entries = idx.Len()
	stats.Elapsed = time.Since(start)
	return idx, stats, nil
}

// BuildIDs hands out time-ordered build identifiers.
type BuildIDs struct {
	node *snowflake.Node
}

func NewBuildIDs(node int64) (*BuildIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("create build id node: %w", err)
	}
	return &BuildIDs{node: n}, nil
}

// NewMeta stamps a fresh build ID and creation time.
func (b *BuildIDs) NewMeta(embeddingModel string) vectorindex.Meta {
	return vectorindex.Meta{
		BuildID:        b.node.Generate().String(),
		EmbeddingModel: embeddingModel,
		CreatedAt:      time.Now().UTC(),
	}
}
