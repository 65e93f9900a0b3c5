package vectorindex

import (
	"math"
	"sort"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
)

// MetricCosine is the only similarity metric. Vectors are L2-normalised on insert and scored by
// dot product.
const MetricCosine = "cosine"

// Entry pairs a normalised vector with the chunk it was embedded from.
type Entry struct {
	ID     int
	Vector []float32
	Chunk  chunker.Chunk
}

type Result struct {
	Chunk chunker.Chunk
	Score float64
}

// Index is an immutable brute-force nearest-neighbour index. Concurrent Search calls need no locking.
type Index struct {
	dimension int
	entries   []Entry
}

// Empty returns an index with no entries and no fixed dimension yet.
func Empty() *Index {
	return &Index{}
}

// newIndex normalises vectors and numbers entries from zero. All vectors must share one dimension.
func newIndex(vectors [][]float32, chunks []chunker.Chunk) (*Index, error) {
	if len(vectors) == 0 {
		return Empty(), nil
	}
	dim := len(vectors[0])
	idx := &Index{dimension: dim, entries: make([]Entry, len(vectors))}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &rag.DimensionMismatchError{Want: dim, Got: len(v)}
		}
		idx.entries[i] = Entry{ID: i, Vector: normalize(v), Chunk: chunks[i]}
	}
	return idx, nil
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Dimension returns the vector dimension, or 0 for an empty index.
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Entries returns the entries in ID order. Callers must not modify them.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// Merge returns a new index holding the entries of a followed by those of b. Identical chunks
// stay as separate entries. Neither input is modified.
func Merge(a, b *Index) (*Index, error) {
	switch {
	case a.Len() == 0:
		return b.clone(0), nil
	case b.Len() == 0:
		return a.clone(0), nil
	case a.dimension != b.dimension:
		return nil, &rag.DimensionMismatchError{Want: a.dimension, Got: b.dimension}
	}

	merged := &Index{dimension: a.dimension, entries: make([]Entry, 0, a.Len()+b.Len())}
	merged.entries = append(merged.entries, a.entries...)
	for _, e := range b.entries {
		e.ID += a.Len()
		merged.entries = append(merged.entries, e)
	}
	return merged, nil
}

// clone shares vectors (never mutated) and renumbers IDs starting at base.
func (idx *Index) clone(base int) *Index {
	out := &Index{dimension: idx.dimension, entries: make([]Entry, len(idx.entries))}
	for i, e := range idx.entries {
		e.ID = base + i
		out.entries[i] = e
	}
	return out
}

// Search returns up to k entries ordered by descending cosine similarity to query. Equal scores
// are ordered by entry ID.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if k <= 0 || idx.Len() == 0 {
		return []Result{}, nil
	}
	if len(query) != idx.dimension {
		return nil, &rag.DimensionMismatchError{Want: idx.dimension, Got: len(query)}
	}

	q := normalize(query)
	type scored struct {
		pos   int
		score float64
	}
	all := make([]scored, len(idx.entries))
	for i, e := range idx.entries {
		all[i] = scored{pos: i, score: dot(q, e.Vector)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score == all[j].score {
			return idx.entries[all[i].pos].ID < idx.entries[all[j].pos].ID
		}
		return all[i].score > all[j].score
	})

	if k > len(all) {
		k = len(all)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{Chunk: idx.entries[all[i].pos].Chunk, Score: all[i].score}
	}
	return results, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
