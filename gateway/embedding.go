package gateway

import (
	"context"
	"fmt"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/sidecar"
)

// EmbeddingSidecarConfig starts a dedicated embedding server alongside
// the gateway's main backend, so vector search stays available while
// the main backend is busy doing inference. Policy is config-driven per
// spec.md's CpuParallel/GpuParallel/Sequential split: the caller decides
// whether to call StartEmbeddingSidecar at all (Sequential never does;
// CpuParallel/GpuParallel do, with Device steering where the embedding
// model is placed relative to the main backend).
type EmbeddingSidecarConfig struct {
	BinaryPath     string
	Args           []string
	ReadinessToken string
	// Port is the HTTP port the spawned process will serve on; if zero,
	// the first free port in [PortRangeStart, PortRangeStart+100) is
	// chosen and appended to Args as "--port <n>".
	Port           int
	PortRangeStart int
	Sink           event.Sink
	Logger         log.Logger
}

// StartEmbeddingSidecar spawns a dedicated embedding server process and
// waits for its readiness token. Calling this while one is already
// running stops the existing one first.
func (g *Gateway) StartEmbeddingSidecar(ctx context.Context, cfg EmbeddingSidecarConfig) error {
	if err := g.StopEmbeddingSidecar(ctx); err != nil {
		return err
	}

	port := cfg.Port
	if port == 0 {
		start := cfg.PortRangeStart
		if start == 0 {
			start = 9100
		}
		found, err := sidecar.FindFreePort(start, 100)
		if err != nil {
			return err
		}
		port = found
	}
	args := append(append([]string{}, cfg.Args...), "--port", fmt.Sprintf("%d", port))

	sidecarCtx, cancel := context.WithCancel(context.Background())
	handle, err := sidecar.Spawn(sidecarCtx, "embedding", cfg.BinaryPath, args, cfg.Sink, cfg.Logger)
	if err != nil {
		cancel()
		return engineerr.Newf(engineerr.StartupFailed, "embedding sidecar: %v", err).WithCause(err)
	}
	if err := handle.WaitForReady(ctx, cfg.ReadinessToken); err != nil {
		cancel()
		return err
	}

	g.mu.Lock()
	g.embeddingSidecar = handle
	g.embeddingSidecarCancel = cancel
	g.embeddingSidecarURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	g.mu.Unlock()
	return nil
}

// StopEmbeddingSidecar kills the dedicated embedding server, if running.
// Safe to call when none is running.
func (g *Gateway) StopEmbeddingSidecar(ctx context.Context) error {
	g.mu.Lock()
	handle := g.embeddingSidecar
	cancel := g.embeddingSidecarCancel
	g.embeddingSidecar = nil
	g.embeddingSidecarCancel = nil
	g.embeddingSidecarURL = ""
	g.mu.Unlock()

	if handle == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if err := handle.Kill(); err != nil {
		return fmt.Errorf("embedding sidecar: %w", err)
	}
	return nil
}

// EmbeddingURL returns, in priority order: the dedicated embedding
// sidecar's URL if one is running, else the main backend's base URL if
// it is currently in Embedding mode, else ok=false.
func (g *Gateway) EmbeddingURL() (url string, ok bool) {
	g.mu.Lock()
	sidecarURL := g.embeddingSidecarURL
	mode := g.mode
	active := g.active
	g.mu.Unlock()

	if sidecarURL != "" {
		return sidecarURL, true
	}
	if mode == ModeEmbedding && active != nil {
		return active.BaseURL()
	}
	return "", false
}

// StopAll stops the active backend and the dedicated embedding sidecar,
// if either is running.
func (g *Gateway) StopAll(ctx context.Context) error {
	stopErr := g.Stop(ctx)
	sidecarErr := g.StopEmbeddingSidecar(ctx)
	if stopErr != nil {
		return stopErr
	}
	return sidecarErr
}
