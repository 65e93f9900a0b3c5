// Package reload replaces the serving index when a new one is published or written to disk.
package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"

	"coursematch/src/core/vectorindex"
	"coursematch/src/infrastructure/events"
)

// Fetcher downloads published index artifacts into a local directory.
type Fetcher interface {
	PullIndex(ctx context.Context, bucket, prefix, dir string) error
}

// Reloader loads index artifacts and installs them in a Holder. A failed load keeps the
// index that is already serving.
type Reloader struct {
	holder *vectorindex.Holder
	dir    string
	model  string
	logger logr.Logger
	notify func(error)

	mu sync.Mutex
}

// NewReloader reloads into holder from dir. model is the configured embedding model; an
// index built with another model is still installed, with a warning.
func NewReloader(holder *vectorindex.Holder, dir, model string, logger logr.Logger) *Reloader {
	return &Reloader{holder: holder, dir: dir, model: model, logger: logger}
}

// OnReload registers fn to be told the outcome of every reload attempt.
func (r *Reloader) OnReload(fn func(error)) *Reloader {
	r.notify = fn
	return r
}

func (r *Reloader) observe(err error) {
	if r.notify != nil {
		r.notify(err)
	}
}

// Reload loads the index directory and swaps it in.
func (r *Reloader) Reload() (vectorindex.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadAndSwap(r.dir)
}

// HandleIndexPublished pulls the announced artifacts next to the index directory, validates
// them, and only then moves them into place and swaps.
func (r *Reloader) HandleIndexPublished(f Fetcher) events.IndexHandler {
	return func(ctx context.Context, evt events.IndexPublished) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if cur := r.holder.Meta(); evt.BuildID != "" && cur.BuildID == evt.BuildID {
			r.logger.V(1).Info("index already serving", "build_id", evt.BuildID)
			return nil
		}

		parent := filepath.Dir(filepath.Clean(r.dir))
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", parent, err)
		}
		staging, err := os.MkdirTemp(parent, ".incoming-")
		if err != nil {
			return fmt.Errorf("create staging directory: %w", err)
		}
		defer os.RemoveAll(staging)

		if err := f.PullIndex(ctx, evt.Bucket, evt.Prefix, staging); err != nil {
			err = fmt.Errorf("pull %s/%s: %w", evt.Bucket, evt.Prefix, err)
			r.observe(err)
			return err
		}
		if _, _, err := vectorindex.Load(staging); err != nil {
			r.logger.Error(err, "published index rejected, keeping current", "build_id", evt.BuildID)
			r.observe(err)
			return err
		}
		if err := install(staging, r.dir); err != nil {
			r.logger.Error(err, "published index could not be installed, keeping current", "build_id", evt.BuildID, "dir", r.dir)
			r.observe(err)
			return err
		}
		_, err = r.loadAndSwap(r.dir)
		return err
	}
}

func (r *Reloader) loadAndSwap(dir string) (vectorindex.Meta, error) {
	idx, meta, err := vectorindex.Load(dir)
	if err != nil {
		r.logger.Error(err, "index reload failed, keeping current", "dir", dir, "serving", r.holder.Meta().BuildID)
		r.observe(err)
		return vectorindex.Meta{}, err
	}
	if r.model != "" && meta.EmbeddingModel != r.model {
		r.logger.Info("index was built with a different embedding model",
			"index_model", meta.EmbeddingModel, "configured_model", r.model)
	}
	old := r.holder.Swap(idx, meta)
	r.logger.Info("index swapped", "build_id", meta.BuildID, "entries", idx.Len(), "previous_entries", old.Len())
	r.observe(nil)
	return meta, nil
}

// install moves the artifacts from src into dst, side table last. The vectors it replaces are
// parked in src and put back if the side table cannot follow, so dst never mixes two builds.
func install(src, dst string) error {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return fmt.Errorf("create index directory %q: %w", dst, err)
	}
	liveVec := filepath.Join(dst, vectorindex.VectorsFile)
	parked := filepath.Join(src, vectorindex.VectorsFile+".prev")
	hadVec := true
	if err := os.Rename(liveVec, parked); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("park %s: %w", vectorindex.VectorsFile, err)
		}
		hadVec = false
	}
	restore := func() {
		os.Remove(liveVec)
		if hadVec {
			os.Rename(parked, liveVec)
		}
	}

	if err := os.Rename(filepath.Join(src, vectorindex.VectorsFile), liveVec); err != nil {
		restore()
		return fmt.Errorf("install %s: %w", vectorindex.VectorsFile, err)
	}
	if err := os.Rename(filepath.Join(src, vectorindex.TableFile), filepath.Join(dst, vectorindex.TableFile)); err != nil {
		restore()
		return fmt.Errorf("install %s: %w", vectorindex.TableFile, err)
	}
	return nil
}
