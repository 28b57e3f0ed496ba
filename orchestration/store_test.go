package orchestration_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/orchestration"
)

func sampleGraph(id string) *orchestration.Graph {
	return &orchestration.Graph{
		ID:   id,
		Name: "sample",
		Nodes: map[string]orchestration.Node{
			"start": {ID: "start", Kind: orchestration.KindStart},
			"end":   {ID: "end", Kind: orchestration.KindEnd},
		},
		Edges: []orchestration.Edge{{ID: "e1", From: "start", To: "end", Label: "next"}},
	}
}

func TestStorePutThenLoadRoundTrips(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := orchestration.NewStore(dir, nil)
	require.NoError(t, store.Put(sampleGraph("g1")))

	reloaded := orchestration.NewStore(dir, nil)
	require.NoError(t, reloaded.Load())

	g, ok := reloaded.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "sample", g.Name)
	assert.Len(t, g.Edges, 1)
}

func TestStoreLoadSkipsMalformedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := orchestration.NewStore(dir, nil)
	require.NoError(t, store.Put(sampleGraph("good")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "no-start.json"), []byte(`{"id":"no-start","nodes":[{"id":"end","kind":"end"}]}`), 0o644))

	reloaded := orchestration.NewStore(dir, nil)
	require.NoError(t, reloaded.Load())

	ids := reloaded.List()
	assert.ElementsMatch(t, []string{"good"}, ids)
}

func TestStorePutRejectsInvalidGraph(t *testing.T) {
	t.Parallel()
	store := orchestration.NewStore(t.TempDir(), nil)
	invalid := &orchestration.Graph{ID: "bad", Nodes: map[string]orchestration.Node{}}
	err := store.Put(invalid)
	require.ErrorIs(t, err, orchestration.ErrNoStart)
}
