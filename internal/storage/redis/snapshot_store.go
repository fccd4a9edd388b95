// Package redis provides a SnapshotStore backed by Redis. The whole
// snapshot is one JSON value under one key, so every Save is atomic and a
// reader sees either the previous snapshot or the new one, never a mix.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

// Config captures the Redis connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// SnapshotStore persists snapshots as single JSON values.
type SnapshotStore struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &SnapshotStore{client: client}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

func snapshotKey(runID string) string {
	return "coordinator:snapshot:" + runID
}

// Load fetches and decodes the snapshot for runID.
func (s *SnapshotStore) Load(ctx context.Context, runID string) (coordinator.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, snapshotKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return coordinator.Snapshot{}, false, nil
	}
	if err != nil {
		return coordinator.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	var snap coordinator.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return coordinator.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Save encodes and writes the snapshot for runID with no expiry.
func (s *SnapshotStore) Save(ctx context.Context, runID string, snap coordinator.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(runID), raw, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
