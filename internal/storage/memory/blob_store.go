package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

// BlobStore stores raw page content in memory.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Put persists the content under key, replacing any previous object.
func (s *BlobStore) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Get returns the content stored under key.
func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, coordinator.Errorf(coordinator.CodeContentNotFound, "no content stored at %s", key)
	}
	return append([]byte(nil), data...), nil
}
