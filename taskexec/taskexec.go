// Package taskexec implements the Task Executor Chain: a composite
// dispatcher that lets a host application override or extend the core
// engine's built-in node behavior without forking it. A host executor is
// tried first; if it declines a node (ErrHostCannotHandle), the core
// executor runs it.
package taskexec

import (
	"context"
	"errors"
	"strings"

	"github.com/dagforge/engine/docgraph"
)

// WaitForInput is returned by an executor that needs to suspend a node
// pending external input (e.g. a human-in-the-loop approval step). The
// demand engine treats it as a control signal, not a task failure: it
// emits WaitingForInput and completes with engineerr.Paused rather than
// caching a result or emitting TaskFailed.
type WaitForInput struct {
	// Prompt describes what response is needed, surfaced on the
	// WaitingForInput event.
	Prompt string
}

// Error implements error.
func (w *WaitForInput) Error() string {
	return "waiting for input: " + w.Prompt
}

// ErrHostCannotHandle is the sentinel a host Executor returns from
// Execute to fall through to the next executor in the chain. Legacy host
// integrations that predate this sentinel may instead return any error
// whose message contains the literal token "requires host-specific
// executor"; CompositeExecutor treats that substring match as an
// equivalent fallthrough for backward compatibility.
var ErrHostCannotHandle = errors.New("taskexec: requires host-specific executor")

// Inputs is the resolved set of input values for a node, keyed by port
// id, assembled by the demand engine before invoking an executor.
type Inputs map[string]any

// Outputs is the set of values an executor produces for a node, keyed by
// output port id.
type Outputs map[string]any

// Extensions is an open bag of host-supplied capabilities (a gateway
// handle, a tool registry, ...) threaded through to every node execution
// without coupling taskexec to any one capability's concrete type.
type Extensions map[string]any

// Context carries everything a node execution needs beyond its own
// input values.
type Context struct {
	context.Context
	Node       docgraph.Node
	Inputs     Inputs
	Extensions Extensions
}

// Executor executes one node, given its resolved inputs, and produces
// its output values.
type Executor interface {
	Execute(ctx *Context) (Outputs, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx *Context) (Outputs, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx *Context) (Outputs, error) {
	return f(ctx)
}

func isFallthrough(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrHostCannotHandle) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "requires host-specific executor")
}

// CompositeExecutor chains a host Executor in front of a core Executor.
// The host is tried first; if it falls through, the core executor runs.
// A nil Host skips straight to Core.
type CompositeExecutor struct {
	Host Executor
	Core Executor
}

// Execute implements Executor.
func (c *CompositeExecutor) Execute(ctx *Context) (Outputs, error) {
	if c.Host != nil {
		out, err := c.Host.Execute(ctx)
		if err == nil {
			return out, nil
		}
		if !isFallthrough(err) {
			return nil, err
		}
	}
	if c.Core == nil {
		return nil, ErrHostCannotHandle
	}
	return c.Core.Execute(ctx)
}

// Registry dispatches to a registered Executor by node type. It is
// itself an Executor, typically used as the Core of a CompositeExecutor.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register associates nodeType with executor.
func (r *Registry) Register(nodeType string, executor Executor) {
	r.executors[nodeType] = executor
}

// Execute implements Executor, dispatching on ctx.Node.Type.
func (r *Registry) Execute(ctx *Context) (Outputs, error) {
	executor, ok := r.executors[ctx.Node.Type]
	if !ok {
		return nil, ErrHostCannotHandle
	}
	return executor.Execute(ctx)
}
