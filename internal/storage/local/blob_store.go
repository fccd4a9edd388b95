// Package local provides a BlobStore that writes page content to the
// filesystem, mainly for development.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

// BlobStore writes objects under a base directory, one file per key.
type BlobStore struct {
	baseDir string
}

// New creates the base directory if needed and returns a BlobStore.
func New(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// resolve maps a key onto a path inside the base directory, rejecting keys
// that would escape it.
func (s *BlobStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes base directory", key)
	}
	return path, nil
}

// Put writes data to the file for key, creating parent directories.
func (s *BlobStore) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// Get reads the file for key.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, coordinator.Errorf(coordinator.CodeContentNotFound, "no content stored at %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
