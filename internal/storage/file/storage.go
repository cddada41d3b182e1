package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage provides a simple file-based storage backend.
// It stores files under a specified base path on the local filesystem.
type Storage struct {
	basePath string
}

// NewStorage creates a new Storage instance with the given basePath.
// The basePath defines the root directory where files will be stored.
func NewStorage(basePath string) *Storage {
	return &Storage{basePath: basePath}
}

// Save stores the file in the given subdirectory (e.g. "original" or
// "thumbs/100x100") with the provided filename and returns the full path.
func (s *Storage) Save(_ context.Context, subdir, filename string, src io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, subdir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dstPath := filepath.Join(dir, filename)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", dstPath, err)
	}

	return dstPath, nil
}

// Load opens the file at the stored path and returns a reader.
func (s *Storage) Load(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load file %s: %w", path, err)
	}

	return f, nil
}

// Delete removes the file from storage.
func (s *Storage) Delete(_ context.Context, path string) error {
	return os.Remove(path)
}
