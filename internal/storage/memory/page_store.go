package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

// PageStore keeps page-metadata rows in memory, keyed by run and URL.
type PageStore struct {
	mu    sync.RWMutex
	pages map[string]map[string]coordinator.PageRecord
}

// NewPageStore creates an empty PageStore.
func NewPageStore() *PageStore {
	return &PageStore{pages: make(map[string]map[string]coordinator.PageRecord)}
}

// Upsert inserts or replaces the row for (page.RunID, page.URL).
func (s *PageStore) Upsert(_ context.Context, page coordinator.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.pages[page.RunID]
	if !ok {
		rows = make(map[string]coordinator.PageRecord)
		s.pages[page.RunID] = rows
	}
	rows[page.URL] = page
	return nil
}

// List returns all rows for a run ordered by fetch time, then URL.
func (s *PageStore) List(_ context.Context, runID string) ([]coordinator.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.pages[runID]
	out := make([]coordinator.PageRecord, 0, len(rows))
	for _, page := range rows {
		out = append(out, page)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FetchedAt != out[j].FetchedAt {
			return out[i].FetchedAt < out[j].FetchedAt
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}
