package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsConfigurationErrorOnMissingModelPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o644))

	code := run([]string{"-config", configPath, "-graphs", dir, "-graph", "main"})
	assert.Equal(t, exitConfigurationErr, code)
}

func TestRunReturnsConfigurationErrorOnMissingGraphFlags(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"model_path":"/m.gguf"}`), 0o644))

	code := run([]string{"-config", configPath})
	assert.Equal(t, exitConfigurationErr, code)
}

func TestRunReturnsGenericFailureOnUnknownGraph(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"model_path":"/m.gguf"}`), 0o644))

	code := run([]string{"-config", configPath, "-graphs", dir, "-graph", "missing"})
	assert.Equal(t, exitGenericFailure, code)
}

func TestRunSucceedsOnStartEndGraph(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"model_path":"/m.gguf"}`), 0o644))

	graphPath := filepath.Join(dir, "main.json")
	require.NoError(t, os.WriteFile(graphPath, []byte(`{
		"id": "main",
		"name": "trivial",
		"nodes": [
			{"id": "start", "kind": "start"},
			{"id": "end", "kind": "end"}
		],
		"edges": [
			{"id": "e1", "from": "start", "to": "end", "label": "next"}
		]
	}`), 0o644))

	code := run([]string{"-config", configPath, "-graphs", dir, "-graph", "main"})
	assert.Equal(t, exitSuccess, code)
}
