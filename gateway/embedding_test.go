package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/gateway"
)

// fakeURLBackend is a fakeBackend variant that reports a BaseURL, used to
// exercise EmbeddingURL's fallback to the main backend when it's running
// in Embedding mode.
type fakeURLBackend struct {
	fakeBackend
	url string
}

func (f *fakeURLBackend) BaseURL() (string, bool) { return f.url, f.url != "" }

func TestStartEmbeddingSidecarAndStop(t *testing.T) {
	t.Parallel()
	g := gateway.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := g.StartEmbeddingSidecar(ctx, gateway.EmbeddingSidecarConfig{
		BinaryPath:     "sh",
		Args:           []string{"-c", "echo embedding-ready; sleep 5"},
		ReadinessToken: "embedding-ready",
		PortRangeStart: 19100,
		Sink:           event.NullSink{},
	})
	require.NoError(t, err)

	url, ok := g.EmbeddingURL()
	require.True(t, ok)
	assert.Contains(t, url, "127.0.0.1:")

	require.NoError(t, g.StopEmbeddingSidecar(context.Background()))
	_, ok = g.EmbeddingURL()
	assert.False(t, ok)

	// idempotent: stopping again is a no-op, not an error.
	require.NoError(t, g.StopEmbeddingSidecar(context.Background()))
}

func TestStartEmbeddingSidecarTimesOutWithoutReadinessToken(t *testing.T) {
	t.Parallel()
	g := gateway.New()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := g.StartEmbeddingSidecar(ctx, gateway.EmbeddingSidecarConfig{
		BinaryPath:     "sh",
		Args:           []string{"-c", "sleep 5"},
		ReadinessToken: "never-printed",
		PortRangeStart: 19200,
		Sink:           event.NullSink{},
	})
	require.Error(t, err)
	kind, ok := engineerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, engineerr.ReadinessTimeout, kind)
}

func TestEmbeddingURLPrefersSidecarOverMainBackend(t *testing.T) {
	t.Parallel()
	g := gateway.New()
	g.Register("fake", func() gateway.Backend {
		return &fakeURLBackend{url: "http://main-backend"}
	})
	require.NoError(t, g.SwitchBackend(context.Background(), "fake"))
	require.NoError(t, g.Start(context.Background(), gateway.Config{EmbeddingMode: true}))

	mainURL, ok := g.EmbeddingURL()
	require.True(t, ok)
	assert.Equal(t, "http://main-backend", mainURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.StartEmbeddingSidecar(ctx, gateway.EmbeddingSidecarConfig{
		BinaryPath:     "sh",
		Args:           []string{"-c", "echo embedding-ready; sleep 5"},
		ReadinessToken: "embedding-ready",
		PortRangeStart: 19300,
		Sink:           event.NullSink{},
	}))
	defer g.StopEmbeddingSidecar(context.Background())

	sidecarURL, ok := g.EmbeddingURL()
	require.True(t, ok)
	assert.NotEqual(t, "http://main-backend", sidecarURL)
}

func TestEmbeddingURLNoneWhenStoppedAndNoSidecar(t *testing.T) {
	t.Parallel()
	g := gateway.New()
	_, ok := g.EmbeddingURL()
	assert.False(t, ok)
}

func TestStopAllStopsBackendAndSidecar(t *testing.T) {
	t.Parallel()
	g := gateway.New()
	var backend *fakeBackend
	g.Register("fake", func() gateway.Backend {
		backend = &fakeBackend{}
		return backend
	})
	require.NoError(t, g.SwitchBackend(context.Background(), "fake"))
	require.NoError(t, g.Start(context.Background(), gateway.Config{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.StartEmbeddingSidecar(ctx, gateway.EmbeddingSidecarConfig{
		BinaryPath:     "sh",
		Args:           []string{"-c", "echo embedding-ready; sleep 5"},
		ReadinessToken: "embedding-ready",
		PortRangeStart: 19400,
		Sink:           event.NullSink{},
	}))

	require.NoError(t, g.StopAll(context.Background()))
	assert.True(t, backend.stopped)
	_, ok := g.EmbeddingURL()
	assert.False(t, ok)

	mode, _ := g.ModeInfo()
	assert.Equal(t, gateway.ModeStopped, mode)
}
