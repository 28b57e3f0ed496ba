package corenodes

import (
	"context"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/taskexec"
)

// InferenceGateway is the capability the llamacpp-inference,
// ollama-inference, embedding, and unload-model nodes look up from
// ctx.Extensions under GatewayExtensionKey. It is a minimal projection of
// gateway.Gateway's public surface so this package never imports gateway
// directly, keeping the dependency edge one-directional (gateway knows
// nothing about taskexec; taskexec only knows this interface).
type InferenceGateway interface {
	Generate(ctx context.Context, backend, prompt string) (<-chan string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Stop(ctx context.Context) error
}

// GatewayExtensionKey is the Extensions map key a host must use when
// providing an InferenceGateway.
const GatewayExtensionKey = "inference_gateway"

func gatewayFrom(ctx *taskexec.Context, nodeType string) (InferenceGateway, error) {
	gw, ok := ctx.Extensions[GatewayExtensionKey].(InferenceGateway)
	if !ok || gw == nil {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "%s: no InferenceGateway registered in extensions", nodeType).WithNode(ctx.Node.ID)
	}
	return gw, nil
}

func runInference(ctx *taskexec.Context, nodeType, backend string) (taskexec.Outputs, error) {
	prompt, ok := ctx.Inputs["prompt"].(string)
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, nodeType+" requires a prompt input").WithNode(ctx.Node.ID)
	}
	gw, err := gatewayFrom(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	stream, err := gw.Generate(ctx.Context, backend, prompt)
	if err != nil {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "%s: %v", nodeType, err).WithNode(ctx.Node.ID).WithCause(err)
	}
	return taskexec.Outputs{"stream": stream}, nil
}

func llamaCppInferenceExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	return runInference(ctx, TypeLlamaCppInference, "llamacpp")
}

func ollamaInferenceExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	return runInference(ctx, TypeOllamaInference, "ollama")
}

func embeddingExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	text, ok := ctx.Inputs["text"].(string)
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "embedding requires a text input").WithNode(ctx.Node.ID)
	}
	gw, err := gatewayFrom(ctx, TypeEmbedding)
	if err != nil {
		return nil, err
	}
	vec, err := gw.Embed(ctx.Context, text)
	if err != nil {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "embedding: %v", err).WithNode(ctx.Node.ID).WithCause(err)
	}
	return taskexec.Outputs{"embedding": vec}, nil
}

func unloadModelExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	gw, err := gatewayFrom(ctx, TypeUnloadModel)
	if err != nil {
		return nil, err
	}
	if err := gw.Stop(ctx.Context); err != nil {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "unload-model: %v", err).WithNode(ctx.Node.ID).WithCause(err)
	}
	return taskexec.Outputs{"ok": true}, nil
}
