package reload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"coursematch/src/core/vectorindex"
)

// DefaultSettle is how long the watcher waits for writes to stop before reloading.
const DefaultSettle = 250 * time.Millisecond

// Watch reloads whenever the side table in the index directory is created, written or
// renamed into place. It blocks until ctx is done.
func (r *Reloader) Watch(ctx context.Context, settle time.Duration) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	// the directory may not exist before the first build
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", r.dir, err)
	}
	// watch the directory; atomic renames replace the file inode
	if err := w.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}
	r.logger.Info("watching index directory", "dir", r.dir)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != vectorindex.TableFile {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error(err, "index watcher")
		case <-fire:
			fire = nil
			_, _ = r.Reload()
		}
	}
}
