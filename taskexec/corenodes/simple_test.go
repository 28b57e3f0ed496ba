package corenodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/docgraph"
	"github.com/dagforge/engine/taskexec"
)

func TestTextInputOutputsDataLiteral(t *testing.T) {
	t.Parallel()
	ctx := &taskexec.Context{Node: docgraph.Node{ID: "n1", Data: map[string]any{"text": "hi"}}}
	out, err := textInputExecute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", out["text"])
}

func TestTextOutputRequiresInput(t *testing.T) {
	t.Parallel()
	ctx := &taskexec.Context{Node: docgraph.Node{ID: "n2"}, Inputs: taskexec.Inputs{}}
	_, err := textOutputExecute(ctx)
	assert.Error(t, err)
}

func TestConditionRoutesThenOrElse(t *testing.T) {
	t.Parallel()
	ctx := &taskexec.Context{
		Node:   docgraph.Node{ID: "n3", Data: map[string]any{"operator": "eq"}},
		Inputs: taskexec.Inputs{"value": "foo", "predicate": "foo"},
	}
	out, err := conditionExecute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "foo", out["then"])
	assert.Nil(t, out["else"])

	ctx.Inputs["predicate"] = "bar"
	out, err = conditionExecute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "foo", out["else"])
}

func TestMergeCombinesAllConnectedInputs(t *testing.T) {
	t.Parallel()
	ctx := &taskexec.Context{
		Node:   docgraph.Node{ID: "n4"},
		Inputs: taskexec.Inputs{"in.0": "a", "in.1": "b"},
	}
	out, err := mergeExecute(ctx)
	require.NoError(t, err)
	merged, ok := out["out"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", merged["in.0"])
	assert.Equal(t, "b", merged["in.1"])
}

func TestMergeRequiresAtLeastOneInput(t *testing.T) {
	t.Parallel()
	ctx := &taskexec.Context{Node: docgraph.Node{ID: "n5"}, Inputs: taskexec.Inputs{}}
	_, err := mergeExecute(ctx)
	assert.Error(t, err)
}

func TestReadFileAndWriteFileAreStubbedOutOfScope(t *testing.T) {
	t.Parallel()
	_, err := readFileExecute(&taskexec.Context{Node: docgraph.Node{ID: "n6"}})
	assert.ErrorContains(t, err, "not implemented")

	_, err = writeFileExecute(&taskexec.Context{Node: docgraph.Node{ID: "n7"}})
	assert.ErrorContains(t, err, "not implemented")
}

func TestRegisterTypesPopulatesEveryBuiltinType(t *testing.T) {
	t.Parallel()
	registry := docgraph.NewRegistry()
	RegisterTypes(registry)

	for _, typ := range []string{
		TypeTextInput, TypeTextOutput, TypeImageInput, TypeLinkedInput,
		TypeCondition, TypeMerge, TypeToolExecutor, TypeComponentPreview,
		TypeReadFile, TypeWriteFile, TypeVectorDB, TypeLlamaCppInference,
		TypeOllamaInference, TypeEmbedding, TypeUnloadModel,
	} {
		_, ok := registry.Lookup(typ)
		assert.True(t, ok, "expected %s to be registered", typ)
	}
}
