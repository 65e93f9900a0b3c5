package minioctrl_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag/ragtest"
	"coursematch/src/core/vectorindex"
	"coursematch/src/storage/minioctrl"
)

type memStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	order   []string
}

func newMemStore() *memStore {
	return &memStore{buckets: map[string]map[string][]byte{}}
}

func (m *memStore) EnsureBucketExists(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = map[string][]byte{}
	}
	return nil
}

func (m *memStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, os.ErrNotExist)
	}
	return data, nil
}

func (m *memStore) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return errors.New("no such bucket")
	}
	b[key] = append([]byte(nil), data...)
	m.order = append(m.order, key)
	return nil
}

func persistIndex(t *testing.T, dir string) *vectorindex.Index {
	t.Helper()
	chunks := []chunker.Chunk{
		{Text: "Computer Programming diploma", SourceID: "cp.pdf"},
		{Text: "Practical Nursing diploma", SourceID: "pn.pdf", Seq: 1},
	}
	idx, err := vectorindex.Build(context.Background(), ragtest.NewHashEmbedder(32), chunks, vectorindex.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, vectorindex.Persist(dir, idx, vectorindex.Meta{BuildID: "42", EmbeddingModel: "hash"}))
	return idx
}

func TestPushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	persistIndex(t, src)

	store := newMemStore()
	require.NoError(t, minioctrl.PushIndex(ctx, store, "indexes", "42", src))
	assert.Equal(t, []string{"42/index.vec", "42/index.json"}, store.order)

	dst := filepath.Join(t.TempDir(), "pulled")
	require.NoError(t, minioctrl.PullIndex(ctx, store, "indexes", "42", dst))

	for _, name := range vectorindex.ArtifactNames() {
		want, err := os.ReadFile(filepath.Join(src, name))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dst, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	idx, meta, err := vectorindex.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, "42", meta.BuildID)
}

func TestPullMissingPrefixLeavesDirectoryAlone(t *testing.T) {
	ctx := context.Background()
	dst := t.TempDir()
	persistIndex(t, dst)
	before, err := os.ReadFile(filepath.Join(dst, vectorindex.TableFile))
	require.NoError(t, err)

	store := newMemStore()
	require.NoError(t, store.EnsureBucketExists(ctx, "indexes"))
	err = minioctrl.PullIndex(ctx, store, "indexes", "missing", dst)
	assert.ErrorIs(t, err, os.ErrNotExist)

	after, err := os.ReadFile(filepath.Join(dst, vectorindex.TableFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPushWithoutIndex(t *testing.T) {
	err := minioctrl.PushIndex(context.Background(), newMemStore(), "indexes", "p", t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"indexes/42", "indexes", "42"},
		{"indexes/nightly/42/", "indexes", "nightly/42"},
		{"indexes", "indexes", ""},
	}
	for _, tt := range tests {
		bucket, prefix := minioctrl.SplitLocation(tt.in)
		assert.Equal(t, tt.bucket, bucket, tt.in)
		assert.Equal(t, tt.prefix, prefix, tt.in)
	}
}
