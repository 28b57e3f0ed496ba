// Package postgres provides an undo.SnapshotStore backed by PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dagforge/engine/undo"
)

// DBPool is the subset of *pgxpool.Pool this store needs, so tests can
// substitute pgxmock.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements undo.SnapshotStore using PostgreSQL.
type Store struct {
	pool      DBPool
	tableName string
}

// Options configures the Postgres connection.
type Options struct {
	ConnString string
	TableName  string // default "undo_snapshots"
}

// New creates a Postgres-backed snapshot store and opens a connection
// pool.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewWithPool(pool, opts.TableName), nil
}

// NewWithPool creates a Postgres-backed snapshot store from an existing
// pool, letting tests substitute a mock.
func NewWithPool(pool DBPool, tableName string) *Store {
	if tableName == "" {
		tableName = "undo_snapshots"
	}
	return &Store{pool: pool, tableName: tableName}
}

// InitSchema creates the snapshot table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			data BYTEA NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL,
			seq INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_graph_id ON %s (graph_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Save stores a snapshot.
func (s *Store) Save(ctx context.Context, snapshot *undo.Snapshot) error {
	metadataJSON, err := json.Marshal(snapshot.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, graph_id, data, metadata, timestamp, seq)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			graph_id = EXCLUDED.graph_id,
			data = EXCLUDED.data,
			metadata = EXCLUDED.metadata,
			timestamp = EXCLUDED.timestamp,
			seq = EXCLUDED.seq
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		snapshot.ID, snapshot.GraphID, snapshot.Data, metadataJSON, snapshot.Timestamp, snapshot.Seq)
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
		WHERE id = $1
	`, s.tableName)

	var snap undo.Snapshot
	var metadataJSON []byte

	err := s.pool.QueryRow(ctx, query, snapshotID).Scan(
		&snap.ID, &snap.GraphID, &snap.Data, &metadataJSON, &snap.Timestamp, &snap.Seq)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("snapshot not found: %s", snapshotID)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &snap.Metadata); err != nil {
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
		WHERE graph_id = $1
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*undo.Snapshot
	for rows.Next() {
		var snap undo.Snapshot
		var metadataJSON []byte
		if err := rows.Scan(&snap.ID, &snap.GraphID, &snap.Data, &metadataJSON, &snap.Timestamp, &snap.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &snap.Metadata); err != nil {
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
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, snapshotID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Clear removes every snapshot belonging to graphID.
func (s *Store) Clear(ctx context.Context, graphID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE graph_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, graphID); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}
