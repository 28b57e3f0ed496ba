// Package sqlite provides an undo.SnapshotStore backed by SQLite, for a
// single-process durable undo history without an external service.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dagforge/engine/undo"
)

// Store implements undo.SnapshotStore using SQLite.
type Store struct {
	db        *sql.DB
	tableName string
}

// Options configures the SQLite connection.
type Options struct {
	Path      string
	TableName string // default "undo_snapshots"
}

// New opens (creating if necessary) a SQLite-backed snapshot store.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "undo_snapshots"
	}

	store := &Store{db: db, tableName: tableName}
	if err := store.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// InitSchema creates the snapshot table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			data BLOB NOT NULL,
			metadata TEXT,
			timestamp DATETIME NOT NULL,
			seq INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_graph_id ON %s (graph_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a snapshot.
func (s *Store) Save(ctx context.Context, snapshot *undo.Snapshot) error {
	metadataJSON, err := json.Marshal(snapshot.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, graph_id, data, metadata, timestamp, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			graph_id = excluded.graph_id,
			data = excluded.data,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp,
			seq = excluded.seq
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.GraphID, snapshot.Data, string(metadataJSON), snapshot.Timestamp, snapshot.Seq)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (s *Store) Load(ctx context.Context, snapshotID string) (*undo.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT id, graph_id, data, metadata, timestamp, seq
		FROM %s
		WHERE id = ?
	`, s.tableName)

	var snap undo.Snapshot
	var metadataJSON string

	err := s.db.QueryRowContext(ctx, query, snapshotID).Scan(
		&snap.ID, &snap.GraphID, &snap.Data, &metadataJSON, &snap.Timestamp, &snap.Seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot not found: %s", snapshotID)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal([]byte(metadataJSON), &snap.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &snap, nil
}

// List returns every snapshot belonging to graphID, ordered by seq.
func (s *Store) List(ctx context.Context, graphID string) ([]*undo.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT id, graph_id, data, metadata, timestamp, seq
		FROM %s
		WHERE graph_id = ?
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*undo.Snapshot
	for rows.Next() {
		var snap undo.Snapshot
		var metadataJSON string
		if err := rows.Scan(&snap.ID, &snap.GraphID, &snap.Data, &metadataJSON, &snap.Timestamp, &snap.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal([]byte(metadataJSON), &snap.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return out, nil
}

// Delete removes a snapshot by ID.
func (s *Store) Delete(ctx context.Context, snapshotID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, snapshotID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Clear removes every snapshot belonging to graphID.
func (s *Store) Clear(ctx context.Context, graphID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE graph_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, graphID); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}
