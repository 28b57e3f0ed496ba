package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/undo"
)

func TestPostgresSnapshotStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "undo_snapshots")

	snap := &undo.Snapshot{
		ID:        "snap-1",
		GraphID:   "graph-1",
		Data:      []byte("zstd-bytes"),
		Timestamp: time.Now(),
		Seq:       1,
	}
	metadataJSON, _ := json.Marshal(snap.Metadata)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO undo_snapshots")).
		WithArgs(snap.ID, snap.GraphID, snap.Data, metadataJSON, snap.Timestamp, snap.Seq).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStore_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "undo_snapshots")

	timestamp := time.Now()
	rows := pgxmock.NewRows([]string{"id", "graph_id", "data", "metadata", "timestamp", "seq"}).
		AddRow("snap-1", "graph-1", []byte("zstd-bytes"), []byte("{}"), timestamp, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, graph_id, data, metadata, timestamp, seq FROM undo_snapshots WHERE id = $1")).
		WithArgs("snap-1").
		WillReturnRows(rows)

	loaded, err := store.Load(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", loaded.ID)
	assert.Equal(t, []byte("zstd-bytes"), loaded.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStore_Load_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "undo_snapshots")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, graph_id, data, metadata, timestamp, seq FROM undo_snapshots WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	loaded, err := store.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.Nil(t, loaded)
	assert.Contains(t, err.Error(), "snapshot not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "undo_snapshots")

	timestamp := time.Now()
	rows := pgxmock.NewRows([]string{"id", "graph_id", "data", "metadata", "timestamp", "seq"}).
		AddRow("snap-1", "graph-1", []byte("a"), []byte("{}"), timestamp, 1).
		AddRow("snap-2", "graph-1", []byte("b"), []byte("{}"), timestamp, 2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, graph_id, data, metadata, timestamp, seq FROM undo_snapshots WHERE graph_id = $1 ORDER BY seq ASC")).
		WithArgs("graph-1").
		WillReturnRows(rows)

	loaded, err := store.List(context.Background(), "graph-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "snap-1", loaded[0].ID)
	assert.Equal(t, "snap-2", loaded[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStore_Delete_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "undo_snapshots")

	dbErr := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM undo_snapshots WHERE id = $1")).
		WithArgs("snap-1").
		WillReturnError(dbErr)

	err = store.Delete(context.Background(), "snap-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStore_Clear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "undo_snapshots")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM undo_snapshots WHERE graph_id = $1")).
		WithArgs("graph-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.Clear(context.Background(), "graph-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
