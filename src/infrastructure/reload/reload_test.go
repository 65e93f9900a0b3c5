package reload_test

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
	"coursematch/src/core/rag/ragtest"
	"coursematch/src/core/vectorindex"
	"coursematch/src/infrastructure/events"
	"coursematch/src/infrastructure/reload"
)

func writeIndex(t *testing.T, dir, buildID string, texts ...string) {
	t.Helper()
	chunks := make([]chunker.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunker.Chunk{Text: text, SourceID: buildID + ".pdf", Seq: i}
	}
	idx, err := vectorindex.Build(context.Background(), ragtest.NewHashEmbedder(16), chunks, vectorindex.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, vectorindex.Persist(dir, idx, vectorindex.Meta{BuildID: buildID, EmbeddingModel: "hash"}))
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	holder := vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{})
	var outcomes []error
	r := reload.NewReloader(holder, dir, "hash", logr.Discard()).OnReload(func(err error) {
		outcomes = append(outcomes, err)
	})

	_, err := r.Reload()
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)
	assert.Equal(t, 0, holder.Current().Len())

	writeIndex(t, dir, "1", "welding", "nursing")
	meta, err := r.Reload()
	require.NoError(t, err)
	assert.Equal(t, "1", meta.BuildID)
	assert.Equal(t, 2, holder.Current().Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorindex.TableFile), []byte("{"), 0o640))
	_, err = r.Reload()
	assert.Error(t, err)
	assert.Equal(t, "1", holder.Meta().BuildID)
	assert.Equal(t, 2, holder.Current().Len())

	require.Len(t, outcomes, 3)
	assert.Error(t, outcomes[0])
	assert.NoError(t, outcomes[1])
	assert.Error(t, outcomes[2])
}

type dirFetcher struct {
	root  string
	calls int
}

func (f *dirFetcher) PullIndex(_ context.Context, _, prefix, dir string) error {
	f.calls++
	for _, name := range vectorindex.ArtifactNames() {
		data, err := os.ReadFile(filepath.Join(f.root, prefix, name))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o640); err != nil {
			return err
		}
	}
	return nil
}

func TestHandleIndexPublished(t *testing.T) {
	ctx := context.Background()
	remote := t.TempDir()
	writeIndex(t, filepath.Join(remote, "2"), "2", "welding", "nursing", "programming")
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "bad"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "bad", vectorindex.VectorsFile), []byte("junk"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "bad", vectorindex.TableFile), []byte("{}"), 0o640))

	local := filepath.Join(t.TempDir(), "index")
	writeIndex(t, local, "1", "welding")
	holder := vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{})
	r := reload.NewReloader(holder, local, "hash", logr.Discard())
	_, err := r.Reload()
	require.NoError(t, err)

	fetcher := &dirFetcher{root: remote}
	handle := r.HandleIndexPublished(fetcher)

	err = handle(ctx, events.IndexPublished{BuildID: "bad", Bucket: "b", Prefix: "bad"})
	assert.Error(t, err)
	assert.Equal(t, "1", holder.Meta().BuildID)
	_, meta, err := vectorindex.Load(local)
	require.NoError(t, err)
	assert.Equal(t, "1", meta.BuildID, "rejected artifacts must not reach the index directory")

	require.NoError(t, handle(ctx, events.IndexPublished{BuildID: "2", Bucket: "b", Prefix: "2"}))
	assert.Equal(t, "2", holder.Meta().BuildID)
	assert.Equal(t, 3, holder.Current().Len())

	// redelivery of the serving build is a no-op
	calls := fetcher.calls
	require.NoError(t, handle(ctx, events.IndexPublished{BuildID: "2", Bucket: "b", Prefix: "2"}))
	assert.Equal(t, calls, fetcher.calls)

	missing := handle(ctx, events.IndexPublished{BuildID: "3", Bucket: "b", Prefix: "3"})
	assert.True(t, errors.Is(missing, os.ErrNotExist))
	assert.Equal(t, "2", holder.Meta().BuildID)
}

func TestHandleIndexPublishedRejectsCorruptVectors(t *testing.T) {
	remote := t.TempDir()
	writeIndex(t, filepath.Join(remote, "9"), "9", "welding", "nursing")
	vec := filepath.Join(remote, "9", vectorindex.VectorsFile)
	data, err := os.ReadFile(vec)
	require.NoError(t, err)
	// count and dimension far beyond the side table
	binary.LittleEndian.PutUint32(data[8:], 0x7fffffff)
	binary.LittleEndian.PutUint32(data[12:], 0x7fffffff)
	require.NoError(t, os.WriteFile(vec, data, 0o640))

	local := filepath.Join(t.TempDir(), "index")
	writeIndex(t, local, "1", "welding")
	holder := vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{})
	var outcomes []error
	r := reload.NewReloader(holder, local, "hash", logr.Discard()).OnReload(func(err error) {
		outcomes = append(outcomes, err)
	})
	_, err = r.Reload()
	require.NoError(t, err)

	err = r.HandleIndexPublished(&dirFetcher{root: remote})(context.Background(), events.IndexPublished{BuildID: "9", Bucket: "b", Prefix: "9"})
	require.Error(t, err)
	assert.Equal(t, "1", holder.Meta().BuildID)
	assert.Equal(t, 1, holder.Current().Len())
	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[1])

	_, meta, err := vectorindex.Load(local)
	require.NoError(t, err)
	assert.Equal(t, "1", meta.BuildID)
}

func TestHandleIndexPublishedRestoresVectorsWhenInstallFails(t *testing.T) {
	remote := t.TempDir()
	writeIndex(t, filepath.Join(remote, "2"), "2", "welding", "nursing")

	local := filepath.Join(t.TempDir(), "index")
	writeIndex(t, local, "1", "welding")
	holder := vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{})
	var outcomes []error
	r := reload.NewReloader(holder, local, "hash", logr.Discard()).OnReload(func(err error) {
		outcomes = append(outcomes, err)
	})
	_, err := r.Reload()
	require.NoError(t, err)
	liveVec, err := os.ReadFile(filepath.Join(local, vectorindex.VectorsFile))
	require.NoError(t, err)

	// a non-empty directory where the side table goes makes the final rename fail
	table := filepath.Join(local, vectorindex.TableFile)
	require.NoError(t, os.Remove(table))
	require.NoError(t, os.MkdirAll(filepath.Join(table, "blocker"), 0o750))

	err = r.HandleIndexPublished(&dirFetcher{root: remote})(context.Background(), events.IndexPublished{BuildID: "2", Bucket: "b", Prefix: "2"})
	require.Error(t, err)
	assert.Equal(t, "1", holder.Meta().BuildID)
	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[1])

	got, err := os.ReadFile(filepath.Join(local, vectorindex.VectorsFile))
	require.NoError(t, err)
	assert.Equal(t, liveVec, got)
}

func TestWatchCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "course_index")
	holder := vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{})
	r := reload.NewReloader(holder, dir, "", logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	writeIndex(t, dir, "7", "welding", "nursing", "programming")

	require.Eventually(t, func() bool {
		return holder.Meta().BuildID == "7"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 3, holder.Current().Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, "1", "welding")
	holder := vectorindex.NewHolder(vectorindex.Empty(), vectorindex.Meta{})
	r := reload.NewReloader(holder, dir, "", logr.Discard())
	_, err := r.Reload()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, 10*time.Millisecond) }()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeIndex(t, dir, "2", "welding", "nursing")

	require.Eventually(t, func() bool {
		return holder.Meta().BuildID == "2"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, holder.Current().Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
