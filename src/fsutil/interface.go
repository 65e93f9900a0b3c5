package fsutil

// FileStore provides an interface for file system operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces a file atomically
	WriteFile(path string, data []byte) error

	// ListFiles returns the regular files directly inside dir, sorted by name
	ListFiles(dir string) ([]string, error)

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// GetFileStats returns the total count and size of files in a directory
	GetFileStats(path string) (count int, size int64, err error)
}
