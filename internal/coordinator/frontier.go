package coordinator

import "sort"

// Frontier holds URLs admitted but not yet dispatched. Insertion order is
// irrelevant; dispatch order is (higher priority first, then oldest first)
// and is produced lazily by Take.
type Frontier struct {
	items []QueuedURL
	byURL map[string]struct{}
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{byURL: make(map[string]struct{})}
}

// RestoreFrontier rebuilds a frontier from a snapshot slot.
func RestoreFrontier(items []QueuedURL) *Frontier {
	f := &Frontier{
		items: append([]QueuedURL(nil), items...),
		byURL: make(map[string]struct{}, len(items)),
	}
	for _, item := range items {
		f.byURL[item.URL] = struct{}{}
	}
	return f
}

// Size returns the number of queued URLs.
func (f *Frontier) Size() int {
	return len(f.items)
}

// Contains reports whether the normalized URL is already queued.
func (f *Frontier) Contains(normalized string) bool {
	_, ok := f.byURL[normalized]
	return ok
}

// Push appends an already-validated item. Callers must have checked
// Contains first; no two items share a normalized URL.
func (f *Frontier) Push(item QueuedURL) {
	f.items = append(f.items, item)
	f.byURL[item.URL] = struct{}{}
}

// Take walks the frontier in dispatch order and removes up to limit items
// accepted by the predicate. Rejected items keep their place for the next
// call. The predicate sees items in order and may track per-call state
// (such as domains already granted in this batch).
func (f *Frontier) Take(limit int, accept func(QueuedURL) bool) []QueuedURL {
	if limit <= 0 || len(f.items) == 0 {
		return nil
	}
	ordered := append([]QueuedURL(nil), f.items...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].AddedAt < ordered[j].AddedAt
	})

	batch := make([]QueuedURL, 0, limit)
	remaining := ordered[:0]
	for _, item := range ordered {
		if len(batch) < limit && accept(item) {
			batch = append(batch, item)
			delete(f.byURL, item.URL)
			continue
		}
		remaining = append(remaining, item)
	}
	f.items = append([]QueuedURL(nil), remaining...)
	return batch
}

// Export copies the queued items for the snapshot slot.
func (f *Frontier) Export() []QueuedURL {
	return append([]QueuedURL(nil), f.items...)
}

// Clear drops all queued items.
func (f *Frontier) Clear() {
	f.items = nil
	f.byURL = make(map[string]struct{})
}
