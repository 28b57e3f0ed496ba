package corenodes

import (
	"context"

	"github.com/smallnest/goskills"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/taskexec"
)

// ToolCaller is the capability a host places in a taskexec.Context's
// Extensions bag under ToolCallerExtensionKey so the tool-executor node
// can invoke a resolved skill without this package depending on any
// specific tool-calling backend.
type ToolCaller interface {
	CallTool(ctx context.Context, skill goskills.SkillPackage, prompt string) (string, error)
}

// ToolCallerExtensionKey is the Extensions map key a host must use when
// providing a ToolCaller.
const ToolCallerExtensionKey = "tool_caller"

// toolExecutorExecute resolves the Tools-typed "tools" input (a slice of
// goskills.SkillPackage) and invokes the first one via the ToolCaller
// found in ctx.Extensions, feeding it the "prompt" input.
func toolExecutorExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	prompt, ok := ctx.Inputs["prompt"].(string)
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "tool-executor requires a prompt input").WithNode(ctx.Node.ID)
	}
	rawTools, ok := ctx.Inputs["tools"]
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "tool-executor requires a tools input").WithNode(ctx.Node.ID)
	}
	skills, ok := rawTools.([]goskills.SkillPackage)
	if !ok || len(skills) == 0 {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "tool-executor: tools input must be a non-empty []goskills.SkillPackage, got %T", rawTools).WithNode(ctx.Node.ID)
	}

	caller, ok := ctx.Extensions[ToolCallerExtensionKey].(ToolCaller)
	if !ok || caller == nil {
		return nil, engineerr.New(engineerr.ExecutionFailed, "tool-executor: no ToolCaller registered in extensions").WithNode(ctx.Node.ID)
	}

	result, err := caller.CallTool(ctx.Context, skills[0], prompt)
	if err != nil {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "tool-executor: %v", err).WithNode(ctx.Node.ID).WithCause(err)
	}
	return taskexec.Outputs{"result": result}, nil
}
