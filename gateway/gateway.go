// Package gateway implements the Inference Gateway: the single owner of
// which inference backend is active, what mode it's running in, and the
// configuration the application last used per mode.
package gateway

import (
	"context"
	"sync"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/sidecar"
)

// DeviceHint selects where a backend should place its model, threaded
// through Config and surfaced on Capabilities.DeviceSelection.
type DeviceHint struct {
	Kind  DeviceKind
	Index int // meaningful only when Kind == DeviceGPU
}

// DeviceKind is the closed set of device placements a backend may honor.
type DeviceKind string

const (
	DeviceAuto DeviceKind = "auto"
	DeviceCPU  DeviceKind = "cpu"
	DeviceGPU  DeviceKind = "gpu"
)

// Mode is which of the gateway's two jobs the active backend is doing.
type Mode string

const (
	ModeStopped   Mode = "stopped"
	ModeInference Mode = "inference"
	ModeEmbedding Mode = "embedding"
)

// Config is what a backend needs to become ready.
type Config struct {
	ModelPath     string
	BinaryPath    string
	Device        DeviceHint
	EmbeddingMode bool
	ExtraArgs     []string
}

// Capabilities describes what a backend supports, reported statically
// (not dependent on current readiness).
type Capabilities struct {
	ToolCalling     bool
	Embedding       bool
	Streaming       bool
	DeviceSelection bool
}

// Backend is anything the gateway can activate: an in-process model
// client or a supervised sidecar process fronted by HTTP.
type Backend interface {
	Start(ctx context.Context, cfg Config) error
	Stop(ctx context.Context) error
	IsReady() bool
	// BaseURL returns the backend's HTTP base URL, or ok=false for an
	// in-process backend with no network surface.
	BaseURL() (url string, ok bool)
	Capabilities() Capabilities
	// Generate streams incremental text chunks for prompt.
	Generate(ctx context.Context, prompt string) (<-chan string, error)
	// Embed returns a single embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Factory constructs a fresh, unstarted Backend instance.
type Factory func() Backend

// Gateway owns backend registration, the currently active backend, its
// mode, and the last config used per mode so switching modes doesn't
// require re-specifying model paths.
type Gateway struct {
	mu sync.Mutex

	factories map[string]Factory

	activeName string
	active     Backend
	mode       Mode

	lastInferenceConfig *Config
	lastEmbeddingConfig *Config

	// embeddingSidecar is the optional dedicated embedding server a
	// CpuParallel/GpuParallel memory mode starts alongside the main
	// backend; see embedding.go.
	embeddingSidecar       *sidecar.Handle
	embeddingSidecarCancel context.CancelFunc
	embeddingSidecarURL    string
}

// New returns a Gateway with no backends registered and no active
// backend.
func New() *Gateway {
	return &Gateway{factories: make(map[string]Factory), mode: ModeStopped}
}

// Register adds name as an available backend.
func (g *Gateway) Register(name string, factory Factory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.factories[name] = factory
}

// Backends lists every registered backend name, with the currently
// active one (if any) identified separately.
func (g *Gateway) Backends() (all []string, active string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name := range g.factories {
		all = append(all, name)
	}
	return all, g.activeName
}

// SwitchBackend stops the current backend (if any) and instantiates name
// as the new active backend, uninitialized. The caller must Start it.
func (g *Gateway) SwitchBackend(ctx context.Context, name string) error {
	g.mu.Lock()
	factory, ok := g.factories[name]
	g.mu.Unlock()
	if !ok {
		return engineerr.Newf(engineerr.UnknownBackend, "no backend registered as %q", name)
	}

	g.mu.Lock()
	current := g.active
	g.mu.Unlock()
	if current != nil {
		if err := current.Stop(ctx); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.active = factory()
	g.activeName = name
	g.mode = ModeStopped
	g.mu.Unlock()
	return nil
}

// Start delegates to the active backend and records cfg into the slot
// matching cfg.EmbeddingMode.
func (g *Gateway) Start(ctx context.Context, cfg Config) error {
	g.mu.Lock()
	active := g.active
	g.mu.Unlock()
	if active == nil {
		return engineerr.New(engineerr.NotReady, "no active backend; call SwitchBackend first")
	}

	if err := active.Start(ctx, cfg); err != nil {
		return engineerr.Newf(engineerr.StartupFailed, "%v", err).WithCause(err)
	}

	g.mu.Lock()
	cfgCopy := cfg
	if cfg.EmbeddingMode {
		g.lastEmbeddingConfig = &cfgCopy
		g.mode = ModeEmbedding
	} else {
		g.lastInferenceConfig = &cfgCopy
		g.mode = ModeInference
	}
	g.mu.Unlock()
	return nil
}

// SwitchMode stops the active backend and restarts it with the last
// remembered config for target, failing with NoRememberedConfig if the
// application never started that mode before.
func (g *Gateway) SwitchMode(ctx context.Context, target Mode) error {
	g.mu.Lock()
	active := g.active
	var remembered *Config
	switch target {
	case ModeInference:
		remembered = g.lastInferenceConfig
	case ModeEmbedding:
		remembered = g.lastEmbeddingConfig
	}
	g.mu.Unlock()

	if active == nil {
		return engineerr.New(engineerr.NotReady, "no active backend")
	}
	if remembered == nil {
		return engineerr.Newf(engineerr.NoRememberedConfig, "no remembered config for mode %s", target)
	}

	if err := active.Stop(ctx); err != nil {
		return err
	}
	return g.Start(ctx, *remembered)
}

// Stop stops the active backend, if any.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	active := g.active
	g.mu.Unlock()
	if active == nil {
		return nil
	}
	if err := active.Stop(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.mode = ModeStopped
	g.mu.Unlock()
	return nil
}

// IsReady reports whether the active backend is ready to serve requests.
func (g *Gateway) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != nil && g.active.IsReady()
}

// BaseURL returns the active backend's HTTP base URL, if any.
func (g *Gateway) BaseURL() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return "", false
	}
	return g.active.BaseURL()
}

// Capabilities returns the active backend's static capabilities.
func (g *Gateway) Capabilities() Capabilities {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return Capabilities{}
	}
	return g.active.Capabilities()
}

// ModeInfo reports the gateway's current mode and active backend name.
func (g *Gateway) ModeInfo() (mode Mode, backend string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode, g.activeName
}

// Generate streams text from the active backend, satisfying
// corenodes.InferenceGateway's Generate method (the backend argument is
// accepted for interface compatibility but ignored: the active backend
// is always the one that serves a Generate call, per the registry's
// single-active-backend model).
func (g *Gateway) Generate(ctx context.Context, _ string, prompt string) (<-chan string, error) {
	g.mu.Lock()
	active := g.active
	g.mu.Unlock()
	if active == nil || !active.IsReady() {
		return nil, engineerr.New(engineerr.NotReady, "no ready active backend")
	}
	return active.Generate(ctx, prompt)
}

// Embed embeds text via the active backend.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	g.mu.Lock()
	active := g.active
	g.mu.Unlock()
	if active == nil || !active.IsReady() {
		return nil, engineerr.New(engineerr.NotReady, "no ready active backend")
	}
	return active.Embed(ctx, text)
}
