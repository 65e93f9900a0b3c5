package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LocalFileStore implements FileStore using the local filesystem
type LocalFileStore struct{}

// NewLocalFileStore creates a new LocalFileStore
func NewLocalFileStore() FileStore {
	return &LocalFileStore{}
}

func (fs *LocalFileStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (fs *LocalFileStore) WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (fs *LocalFileStore) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (fs *LocalFileStore) MakeDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

func (fs *LocalFileStore) GetFileStats(path string) (count int, size int64, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return 0, 0, err
			}
			count++
			size += info.Size()
		}
	}

	return count, size, nil
}
