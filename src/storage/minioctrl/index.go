package minioctrl

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"coursematch/src/core/vectorindex"
	"coursematch/src/log"
)

// ObjectName returns the key of an index artifact under prefix.
func ObjectName(prefix, artifact string) string {
	return path.Join(prefix, artifact)
}

// PushIndex uploads the artifacts in dir under bucket/prefix. The side table goes last so a
// reader that finds it can rely on the vectors being present.
func PushIndex(ctx context.Context, store ObjectStore, bucket, prefix, dir string) error {
	if err := store.EnsureBucketExists(ctx, bucket); err != nil {
		return err
	}
	for _, name := range vectorindex.ArtifactNames() {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		key := ObjectName(prefix, name)
		if err := store.PutObject(ctx, bucket, key, data); err != nil {
			return err
		}
		log.Debug("uploaded index artifact", "bucket", bucket, "key", key, "bytes", len(data))
	}
	return nil
}

// PullIndex downloads the artifacts under bucket/prefix into dir. Each file is replaced
// atomically; the side table is written last.
func PullIndex(ctx context.Context, store ObjectStore, bucket, prefix, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create index directory %q: %w", dir, err)
	}
	blobs := make(map[string][]byte, 2)
	for _, name := range vectorindex.ArtifactNames() {
		data, err := store.GetObject(ctx, bucket, ObjectName(prefix, name))
		if err != nil {
			return err
		}
		blobs[name] = data
	}
	for _, name := range vectorindex.ArtifactNames() {
		if err := writeFile(filepath.Join(dir, name), blobs[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(dst string, data []byte) error {
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// PushIndex uploads the artifacts in dir to this service.
func (s *MinioService) PushIndex(ctx context.Context, bucket, prefix, dir string) error {
	return PushIndex(ctx, s, bucket, prefix, dir)
}

// PullIndex downloads the artifacts from this service into dir.
func (s *MinioService) PullIndex(ctx context.Context, bucket, prefix, dir string) error {
	return PullIndex(ctx, s, bucket, prefix, dir)
}
