// Package undo implements the Undo Stack: a bounded, cursor-based history
// of zstd-compressed Graph Document snapshots, persisted through a
// pluggable SnapshotStore backend.
package undo

import (
	"context"
	"time"
)

// Snapshot is one entry in the undo history: a compressed, opaque blob
// (a serialized Graph Document) tagged with the graph it belongs to and
// its position in that graph's history.
type Snapshot struct {
	ID        string
	GraphID   string
	Data      []byte
	Metadata  map[string]any
	Timestamp time.Time
	Seq       int
}

// SnapshotStore persists Snapshots. Every method must be safe for
// concurrent use. Implementations: in-memory (default), Redis, Postgres,
// SQLite.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context, snapshotID string) (*Snapshot, error)
	List(ctx context.Context, graphID string) ([]*Snapshot, error)
	Delete(ctx context.Context, snapshotID string) error
	Clear(ctx context.Context, graphID string) error
}
