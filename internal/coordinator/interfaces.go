package coordinator

import (
	"context"
	"time"
)

// SnapshotStore persists the five coordinator slots atomically per run.
// Save must be all-or-nothing: readers never observe a partial snapshot.
type SnapshotStore interface {
	Load(ctx context.Context, runID string) (Snapshot, bool, error)
	Save(ctx context.Context, runID string, snap Snapshot) error
}

// PageStore receives page-metadata rows. Writes happen after the snapshot
// barrier and are best-effort; the coordinator state stays authoritative.
type PageStore interface {
	Upsert(ctx context.Context, page PageRecord) error
	List(ctx context.Context, runID string) ([]PageRecord, error)
}

// BlobStore writes raw page content and reads it back for operators.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Publisher pushes coordinator events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher fingerprints page content for blob addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator mints identifiers for configuration versions.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
