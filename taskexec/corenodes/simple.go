package corenodes

import (
	"errors"
	"fmt"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/taskexec"
)

// ErrNotImplemented is returned by nodes whose domain (file I/O, vector
// search) is explicitly out of scope. They exist in the catalog so a
// Graph Document can reference the type and see its ports, but invoking
// them documents the boundary rather than crossing it.
var ErrNotImplemented = errors.New("corenodes: not implemented (out of scope)")

func textInputExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	text, _ := ctx.Node.Data["text"].(string)
	return taskexec.Outputs{"text": text}, nil
}

func textOutputExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	text, ok := ctx.Inputs["text"]
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "text-output requires a text input").WithNode(ctx.Node.ID)
	}
	return taskexec.Outputs{"text": text}, nil
}

func imageInputExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	img := ctx.Node.Data["image"]
	return taskexec.Outputs{"image": img}, nil
}

func linkedInputExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	in, ok := ctx.Inputs["in"]
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "linked-input requires a connected value").WithNode(ctx.Node.ID)
	}
	return taskexec.Outputs{"out": in}, nil
}

// conditionExecute evaluates Data["operator"] (one of "eq", "ne",
// "truthy") against the value and predicate inputs, routing the value to
// exactly one of "then"/"else".
func conditionExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	value, ok := ctx.Inputs["value"]
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "condition requires a value input").WithNode(ctx.Node.ID)
	}
	predicate, _ := ctx.Inputs["predicate"].(string)

	var matched bool
	operator, _ := ctx.Node.Data["operator"].(string)
	switch operator {
	case "ne":
		matched = fmt.Sprint(value) != predicate
	case "truthy":
		matched = isTruthy(value)
	default: // "eq" and unset
		matched = fmt.Sprint(value) == predicate
	}

	if matched {
		return taskexec.Outputs{"then": value}, nil
	}
	return taskexec.Outputs{"else": value}, nil
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}

// mergeExecute collects every value fanned into the multi-input "in"
// port, keyed by its input key, into a single JSON-shaped
// map. It relies on ctx.Inputs carrying one entry per connected edge
// under synthetic keys "in.0", "in.1", ... assembled by the demand
// engine for Multiple-typed ports.
func mergeExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	merged := make(map[string]any)
	for k, v := range ctx.Inputs {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil, engineerr.New(engineerr.MissingInput, "merge requires at least one connected input").WithNode(ctx.Node.ID)
	}
	return taskexec.Outputs{"out": merged}, nil
}

func readFileExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	return nil, engineerr.Newf(engineerr.ExecutionFailed, "read-file: %v", ErrNotImplemented).WithNode(ctx.Node.ID)
}

func writeFileExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	return nil, engineerr.Newf(engineerr.ExecutionFailed, "write-file: %v", ErrNotImplemented).WithNode(ctx.Node.ID)
}

func vectorDBExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	return nil, engineerr.Newf(engineerr.ExecutionFailed, "vector-db: %v", ErrNotImplemented).WithNode(ctx.Node.ID)
}
