package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/undo"
)

func TestRedisSnapshotStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr()})

	ctx := context.Background()
	graphID := "graph-123"

	snap := &undo.Snapshot{
		ID:        "snap-1",
		GraphID:   graphID,
		Data:      []byte("compressed-bytes"),
		Timestamp: time.Now(),
		Seq:       1,
	}

	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, loaded.ID)
	assert.Equal(t, snap.Data, loaded.Data)

	list, err := store.List(ctx, graphID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0].ID)

	require.NoError(t, store.Delete(ctx, "snap-1"))
	_, err = store.Load(ctx, "snap-1")
	assert.Error(t, err)

	list, err = store.List(ctx, graphID)
	require.NoError(t, err)
	assert.Len(t, list, 0)

	require.NoError(t, store.Save(ctx, &undo.Snapshot{ID: "snap-2", GraphID: graphID, Seq: 2}))
	require.NoError(t, store.Save(ctx, &undo.Snapshot{ID: "snap-3", GraphID: graphID, Seq: 3}))

	list, err = store.List(ctx, graphID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Clear(ctx, graphID))

	list, err = store.List(ctx, graphID)
	require.NoError(t, err)
	assert.Len(t, list, 0)
}
