// Package openai implements a gateway.Backend over any OpenAI-compatible
// HTTP surface (chat completions streaming, embeddings, models) — the
// shape a supervised llama.cpp or Ollama sidecar also exposes, so the
// same backend works whether it's talking to the real OpenAI API or a
// local server fronted by the subprocess supervisor.
package openai

import (
	"context"
	"io"
	"reflect"
	"sync"

	openaiapi "github.com/sashabaranov/go-openai"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/gateway"
)

// Backend adapts github.com/sashabaranov/go-openai to gateway.Backend.
type Backend struct {
	mu     sync.Mutex
	client *openaiapi.Client
	cfg    gateway.Config
	ready  bool
	apiKey string
}

// New returns an unstarted Backend. apiKey may be empty for a local
// server that performs no authentication.
func New(apiKey string) *Backend {
	return &Backend{apiKey: apiKey}
}

// Start points the client at cfg's base URL (cfg.BinaryPath doubles as
// the base URL for this backend, since it has no binary of its own to
// launch — that's the subprocess supervisor's job) and probes readiness
// via a Models call.
func (b *Backend) Start(ctx context.Context, cfg gateway.Config) error {
	b.mu.Lock()
	if b.ready && reflect.DeepEqual(b.cfg, cfg) {
		b.mu.Unlock()
		return nil
	}
	clientCfg := openaiapi.DefaultConfig(b.apiKey)
	if cfg.BinaryPath != "" {
		clientCfg.BaseURL = cfg.BinaryPath
	}
	client := openaiapi.NewClientWithConfig(clientCfg)
	b.client = client
	b.cfg = cfg
	b.mu.Unlock()

	if _, err := client.ListModels(ctx); err != nil {
		return engineerr.Newf(engineerr.HTTPError, "openai backend readiness probe: %v", err).WithCause(err)
	}

	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	return nil
}

// Stop marks the backend not ready. There is no persistent connection to
// release: the HTTP client is stateless.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	return nil
}

// IsReady implements gateway.Backend.
func (b *Backend) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// BaseURL implements gateway.Backend.
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
	return gateway.Capabilities{ToolCalling: true, Embedding: true, Streaming: true, DeviceSelection: false}
}

// Generate streams chat completion chunks for prompt as a single-turn
// user message.
func (b *Backend) Generate(ctx context.Context, prompt string) (<-chan string, error) {
	b.mu.Lock()
	client, cfg := b.client, b.cfg
	ready := b.ready
	b.mu.Unlock()
	if !ready {
		return nil, engineerr.New(engineerr.NotReady, "openai backend not started")
	}

	model := cfg.ModelPath
	if model == "" {
		model = openaiapi.GPT3Dot5Turbo
	}

	stream, err := client.CreateChatCompletionStream(ctx, openaiapi.ChatCompletionRequest{
		Model:    model,
		Messages: []openaiapi.ChatCompletionMessage{{Role: openaiapi.ChatMessageRoleUser, Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return nil, engineerr.Newf(engineerr.HTTPError, "openai chat completion: %v", err).WithCause(err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
			if len(resp.Choices) > 0 {
				out <- resp.Choices[0].Delta.Content
			}
		}
	}()
	return out, nil
}

// Embed implements gateway.Backend.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	b.mu.Lock()
	client, cfg := b.client, b.cfg
	ready := b.ready
	b.mu.Unlock()
	if !ready {
		return nil, engineerr.New(engineerr.NotReady, "openai backend not started")
	}

	model := openaiapi.EmbeddingModel(cfg.ModelPath)
	if cfg.ModelPath == "" {
		model = openaiapi.AdaEmbeddingV2
	}

	resp, err := client.CreateEmbeddings(ctx, openaiapi.EmbeddingRequest{
		Input: []string{text},
		Model: model,
	})
	if err != nil {
		return nil, engineerr.Newf(engineerr.HTTPError, "openai embeddings: %v", err).WithCause(err)
	}
	if len(resp.Data) == 0 {
		return nil, engineerr.New(engineerr.HTTPError, "openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}
