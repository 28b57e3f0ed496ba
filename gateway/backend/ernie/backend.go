package ernie

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/gateway"
)

// Backend adapts LLM to gateway.Backend, so a Qianfan/Ernie model can be
// registered and activated through the same Gateway as any HTTP-fronted
// sidecar backend.
type Backend struct {
	apiKey string

	mu    sync.Mutex
	llm   *LLM
	cfg   gateway.Config
	ready bool
}

// NewBackend returns an unstarted Backend authenticating with apiKey.
func NewBackend(apiKey string) *Backend {
	return &Backend{apiKey: apiKey}
}

// Start constructs the underlying LLM client. cfg.ModelPath selects the
// model (falling back to LLM's own default when empty) and cfg.BinaryPath,
// if set, overrides the Qianfan base URL.
func (b *Backend) Start(ctx context.Context, cfg gateway.Config) error {
	opts := []Option{WithAPIKey(b.apiKey)}
	if cfg.ModelPath != "" {
		opts = append(opts, WithModel(ModelName(cfg.ModelPath)))
	}
	if cfg.BinaryPath != "" {
		opts = append(opts, WithBaseURL(cfg.BinaryPath))
	}

	llm, err := New(opts...)
	if err != nil {
		return engineerr.Newf(engineerr.StartupFailed, "ernie backend: %v", err).WithCause(err)
	}

	b.mu.Lock()
	b.llm = llm
	b.cfg = cfg
	b.ready = true
	b.mu.Unlock()
	return nil
}

// Stop drops the client. There is no connection to release.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	b.llm = nil
	return nil
}

// IsReady implements gateway.Backend.
func (b *Backend) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// BaseURL returns the configured Qianfan base URL override, if any.
func (b *Backend) BaseURL() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.BinaryPath == "" {
		return "", false
	}
	return b.cfg.BinaryPath, true
}

// Capabilities implements gateway.Backend.
func (b *Backend) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{ToolCalling: false, Embedding: true, Streaming: true, DeviceSelection: false}
}

// Generate streams chat completion chunks for prompt, bridging Ernie's
// streaming callback onto a channel.
func (b *Backend) Generate(ctx context.Context, prompt string) (<-chan string, error) {
	b.mu.Lock()
	llm := b.llm
	ready := b.ready
	b.mu.Unlock()
	if !ready {
		return nil, engineerr.New(engineerr.NotReady, "ernie backend not started")
	}

	out := make(chan string)
	go func() {
		defer close(out)
		_, _ = llm.GenerateContent(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		}, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			select {
			case out <- string(chunk):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	}()
	return out, nil
}

// Embed embeds text via Ernie's embedding API.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	llm := b.llm
	ready := b.ready
	b.mu.Unlock()
	if !ready {
		return nil, engineerr.New(engineerr.NotReady, "ernie backend not started")
	}

	vecs, err := llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, engineerr.Newf(engineerr.HTTPError, "ernie embeddings: %v", err).WithCause(err)
	}
	if len(vecs) == 0 {
		return nil, engineerr.New(engineerr.HTTPError, "ernie embeddings: empty response")
	}
	return vecs[0], nil
}
