package vectorindex_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
	"coursematch/src/core/rag/ragtest"
	"coursematch/src/core/vectorindex"
)

func TestPersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	emb := ragtest.NewHashEmbedder(48)
	chunks := chunksOf("downloaded_pdfs/Computer_Programming.pdf",
		"Program: Computer Programming Faculty: School of Engineering Technology",
		"Courses: Programming I, Databases, Web Development",
		"Program: Practical Nursing Faculty: School of Community and Health Studies",
		"Courses: Anatomy, Pharmacology, Clinical Practice",
		"Program: Business Administration Faculty: Business School",
		"Courses: Accounting, Marketing, Economics",
	)
	chunks[0].Metadata = map[string]string{"pages": "2"}
	chunks[1].Offset = 950

	idx, err := vectorindex.Build(ctx, emb, chunks, vectorindex.BuildOptions{BatchSize: 4})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "index")
	meta := vectorindex.Meta{BuildID: "1712", EmbeddingModel: "text-embedding-ada-002", CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, vectorindex.Persist(dir, idx, meta))

	for _, name := range vectorindex.ArtifactNames() {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.NoFileExists(t, filepath.Join(dir, name+".tmp"))
	}

	loaded, gotMeta, err := vectorindex.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Dimension(), loaded.Dimension())
	assert.Equal(t, "2", loaded.Entries()[0].Chunk.Metadata["pages"])
	assert.Equal(t, 950, loaded.Entries()[1].Chunk.Offset)

	for _, q := range []string{"programming", "nursing faculty", "courses", "business marketing", "health studies", "web"} {
		qv, err := emb.EmbedQuery(ctx, q)
		require.NoError(t, err)
		want, err := idx.Search(qv, 4)
		require.NoError(t, err)
		got, err := loaded.Search(qv, 4)
		require.NoError(t, err)
		assert.ElementsMatch(t, resultTexts(want), resultTexts(got), "query %q", q)
	}
}

func TestPersistEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, vectorindex.Persist(dir, vectorindex.Empty(), vectorindex.Meta{}))

	loaded, _, err := vectorindex.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	got, err := loaded.Search([]float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadMissingIndex(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, _, err := vectorindex.Load(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, rag.ErrIndexNotFound))
		var nf *rag.IndexNotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("missing vectors artifact", func(t *testing.T) {
		dir := t.TempDir()
		idx := build(t, "a.pdf", "x", "y")
		require.NoError(t, vectorindex.Persist(dir, idx, vectorindex.Meta{}))
		require.NoError(t, os.Remove(filepath.Join(dir, vectorindex.VectorsFile)))

		_, _, err := vectorindex.Load(dir)
		assert.True(t, errors.Is(err, rag.ErrIndexNotFound))
	})
}

func TestLoadRejectsInconsistentArtifacts(t *testing.T) {
	small := t.TempDir()
	large := t.TempDir()
	require.NoError(t, vectorindex.Persist(small, build(t, "a.pdf", "x"), vectorindex.Meta{}))
	require.NoError(t, vectorindex.Persist(large, build(t, "a.pdf", "x", "y"), vectorindex.Meta{}))

	data, err := os.ReadFile(filepath.Join(small, vectorindex.VectorsFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(large, vectorindex.VectorsFile), data, 0o600))

	_, _, err = vectorindex.Load(large)
	require.Error(t, err)
	assert.False(t, errors.Is(err, rag.ErrIndexNotFound))
}

func TestLoadRejectsForeignVectorFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, vectorindex.Persist(dir, build(t, "a.pdf", "x"), vectorindex.Meta{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorindex.VectorsFile), []byte("not vectors at all"), 0o600))

	_, _, err := vectorindex.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a vector file")
}

func TestLoadRejectsCorruptVectorHeader(t *testing.T) {
	patch := func(t *testing.T, offset int, value uint32) string {
		t.Helper()
		dir := t.TempDir()
		require.NoError(t, vectorindex.Persist(dir, build(t, "a.pdf", "x", "y"), vectorindex.Meta{}))
		path := filepath.Join(dir, vectorindex.VectorsFile)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(data[offset:], value)
		require.NoError(t, os.WriteFile(path, data, 0o600))
		return dir
	}

	t.Run("Should reject an oversized count without allocating it", func(t *testing.T) {
		dir := patch(t, 12, math.MaxInt32)
		_, _, err := vectorindex.Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expects 2")
	})

	t.Run("Should reject an oversized dimension", func(t *testing.T) {
		dir := patch(t, 8, math.MaxInt32)
		_, _, err := vectorindex.Load(dir)
		require.Error(t, err)
		assert.False(t, errors.Is(err, rag.ErrIndexNotFound))
	})

	t.Run("Should reject a truncated matrix", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, vectorindex.Persist(dir, build(t, "a.pdf", "x", "y"), vectorindex.Meta{}))
		path := filepath.Join(dir, vectorindex.VectorsFile)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o600))

		_, _, err = vectorindex.Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bytes")
	})
}

func TestPersistedChunkFields(t *testing.T) {
	dir := t.TempDir()
	c := chunker.Chunk{Text: "Program: Nursing", SourceID: "n.pdf", Offset: 10, Length: 16, Seq: 3}
	idx, err := vectorindex.Build(context.Background(), axes, []chunker.Chunk{c}, vectorindex.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, vectorindex.Persist(dir, idx, vectorindex.Meta{}))

	loaded, _, err := vectorindex.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, c, loaded.Entries()[0].Chunk)
}
