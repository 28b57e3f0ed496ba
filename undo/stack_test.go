package undo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/undo"
	"github.com/dagforge/engine/undo/store/memory"
)

func TestStackPushUndoRedo(t *testing.T) {
	t.Parallel()
	stack, err := undo.NewStack(undo.Config{Store: memory.New(), GraphID: "g1"})
	require.NoError(t, err)
	defer stack.Close()
	ctx := context.Background()

	require.NoError(t, stack.Push(ctx, []byte("v1")))
	require.NoError(t, stack.Push(ctx, []byte("v2")))
	require.NoError(t, stack.Push(ctx, []byte("v3")))

	assert.Equal(t, 3, stack.Len())
	assert.True(t, stack.CanUndo())
	assert.False(t, stack.CanRedo())

	data, err := stack.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.True(t, stack.CanRedo())

	data, err = stack.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.False(t, stack.CanUndo())

	data, err = stack.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestStackPushDiscardsRedoBranch(t *testing.T) {
	t.Parallel()
	stack, err := undo.NewStack(undo.Config{Store: memory.New(), GraphID: "g1"})
	require.NoError(t, err)
	defer stack.Close()
	ctx := context.Background()

	require.NoError(t, stack.Push(ctx, []byte("v1")))
	require.NoError(t, stack.Push(ctx, []byte("v2")))
	_, err = stack.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, stack.CanRedo())

	require.NoError(t, stack.Push(ctx, []byte("v1-branch")))
	assert.False(t, stack.CanRedo())
	assert.Equal(t, 2, stack.Len())
}

func TestStackMaxDepthEvictsOldest(t *testing.T) {
	t.Parallel()
	stack, err := undo.NewStack(undo.Config{Store: memory.New(), GraphID: "g1", MaxDepth: 2})
	require.NoError(t, err)
	defer stack.Close()
	ctx := context.Background()

	require.NoError(t, stack.Push(ctx, []byte("v1")))
	require.NoError(t, stack.Push(ctx, []byte("v2")))
	require.NoError(t, stack.Push(ctx, []byte("v3")))

	assert.Equal(t, 2, stack.Len())
	data, ok, err := stack.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v3", string(data))

	_, err = stack.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, stack.CanUndo())
}

func TestStackUndoOnEmptyFails(t *testing.T) {
	t.Parallel()
	stack, err := undo.NewStack(undo.Config{Store: memory.New(), GraphID: "g1"})
	require.NoError(t, err)
	defer stack.Close()

	_, err = stack.Undo(context.Background())
	assert.Error(t, err)
}

func TestStackCompressedSize(t *testing.T) {
	t.Parallel()
	stack, err := undo.NewStack(undo.Config{Store: memory.New(), GraphID: "g1"})
	require.NoError(t, err)
	defer stack.Close()
	ctx := context.Background()

	require.NoError(t, stack.Push(ctx, []byte("hello world, this compresses reasonably well when repeated. hello world, this compresses reasonably well when repeated.")))
	size, err := stack.CompressedSize(ctx)
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
