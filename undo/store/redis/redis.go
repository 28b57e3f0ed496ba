// Package redis provides an undo.SnapshotStore backed by Redis, for
// sharing undo history across engine instances.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dagforge/engine/undo"
)

// Store implements undo.SnapshotStore using Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "dagforge:undo:"
	TTL      time.Duration // snapshot expiration, default 0 (no expiration)
}

// New creates a Redis-backed snapshot store.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dagforge:undo:"
	}

	return &Store{client: client, prefix: prefix, ttl: opts.TTL}
}

// NewWithClient creates a Redis-backed snapshot store from an existing
// client, useful for tests against miniredis.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "dagforge:undo:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) snapshotKey(id string) string {
	return fmt.Sprintf("%ssnapshot:%s", s.prefix, id)
}

func (s *Store) graphKey(id string) string {
	return fmt.Sprintf("%sgraph:%s:snapshots", s.prefix, id)
}

// Save stores a snapshot.
func (s *Store) Save(ctx context.Context, snapshot *undo.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := s.snapshotKey(snapshot.ID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, s.ttl)

	if snapshot.GraphID != "" {
		graphKey := s.graphKey(snapshot.GraphID)
		pipe.SAdd(ctx, graphKey, snapshot.ID)
		if s.ttl > 0 {
			pipe.Expire(ctx, graphKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (s *Store) Load(ctx context.Context, snapshotID string) (*undo.Snapshot, error) {
	key := s.snapshotKey(snapshotID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("snapshot not found: %s", snapshotID)
		}
		return nil, fmt.Errorf("failed to load snapshot from redis: %w", err)
	}

	var snap undo.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns every snapshot belonging to graphID.
func (s *Store) List(ctx context.Context, graphID string) ([]*undo.Snapshot, error) {
	graphKey := s.graphKey(graphID)
	ids, err := s.client.SMembers(ctx, graphKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for graph %s: %w", graphID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.snapshotKey(id)
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshots: %w", err)
	}

	var snapshots []*undo.Snapshot
	for _, result := range results {
		if result == nil {
			continue
		}
		strData, ok := result.(string)
		if !ok {
			continue
		}
		var snap undo.Snapshot
		if err := json.Unmarshal([]byte(strData), &snap); err != nil {
			continue
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, nil
}

// Delete removes a snapshot by ID.
func (s *Store) Delete(ctx context.Context, snapshotID string) error {
	snap, err := s.Load(ctx, snapshotID)
	if err != nil {
		return err
	}

	key := s.snapshotKey(snapshotID)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, key)
	if snap.GraphID != "" {
		pipe.SRem(ctx, s.graphKey(snap.GraphID), snapshotID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Clear removes every snapshot belonging to graphID.
func (s *Store) Clear(ctx context.Context, graphID string) error {
	graphKey := s.graphKey(graphID)
	ids, err := s.client.SMembers(ctx, graphKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get snapshots for clearing: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.snapshotKey(id))
	}
	pipe.Del(ctx, graphKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}
