// Package memory provides an in-memory undo.SnapshotStore, the default
// backend used when no durable store is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dagforge/engine/undo"
)

// Store is a thread-safe, process-local undo.SnapshotStore.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*undo.Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{snapshots: make(map[string]*undo.Snapshot)}
}

// Save stores snapshot, replacing any existing entry with the same ID.
func (s *Store) Save(_ context.Context, snapshot *undo.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snapshot
	s.snapshots[snapshot.ID] = &cp
	return nil
}

// Load retrieves a snapshot by ID.
func (s *Store) Load(_ context.Context, snapshotID string) (*undo.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotID]
	if !ok {
		return nil, fmt.Errorf("snapshot not found: %s", snapshotID)
	}
	cp := *snap
	return &cp, nil
}

// List returns every snapshot belonging to graphID, ordered by Seq
// ascending.
func (s *Store) List(_ context.Context, graphID string) ([]*undo.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*undo.Snapshot
	for _, snap := range s.snapshots {
		if snap.GraphID == graphID {
			cp := *snap
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Delete removes a snapshot by ID.
func (s *Store) Delete(_ context.Context, snapshotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, snapshotID)
	return nil
}

// Clear removes every snapshot belonging to graphID.
func (s *Store) Clear(_ context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, snap := range s.snapshots {
		if snap.GraphID == graphID {
			delete(s.snapshots, id)
		}
	}
	return nil
}
