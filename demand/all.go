package demand

import (
	"context"
	"sync"

	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/taskexec"
)

// Result is one terminal's outcome from DemandAll.
type Result struct {
	NodeID  string
	Outputs taskexec.Outputs
	Err     error
}

// DemandAll demands every terminal concurrently under the same Engine
// state. A terminal's failure (including Cancelled) is collected without
// aborting the others.
func (e *Engine) DemandAll(ctx context.Context, terminalIDs []string) []Result {
	results := make([]Result, len(terminalIDs))
	var wg sync.WaitGroup
	for i, id := range terminalIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			out, err := e.Demand(ctx, id)
			results[i] = Result{NodeID: id, Outputs: out, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

// Edit is a single structural or data mutation applied to the Engine's
// Graph Document. It returns the id of the node whose version changed
// (the edit's "epicenter"), used to compute the dirty set.
type Edit func() (affectedNodeID string, err error)

// ApplyEditAndIncremental applies edit, propagates dirty invalidation to
// every descendant of the affected node, emits
// IncrementalExecutionStarted with the resulting dirty set intersected
// with demandedTerminals' reachable set (each terminal and every
// upstream producer it demands), and then re-demands every
// terminal (cache hits outside the dirty set are reused).
func (e *Engine) ApplyEditAndIncremental(ctx context.Context, edit Edit, demandedTerminals []string) ([]Result, error) {
	affected, err := edit()
	if err != nil {
		return nil, err
	}

	dirty := e.propagateDirty(affected)

	reachable := make(map[string]bool)
	pending := append([]string{}, demandedTerminals...)
	for len(pending) > 0 {
		n := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if reachable[n] {
			continue
		}
		reachable[n] = true
		for _, in := range e.graph.InEdges(n, "") {
			pending = append(pending, in.SourceNodeID)
		}
	}
	intersect := make([]string, 0, len(dirty))
	for _, id := range dirty {
		if reachable[id] {
			intersect = append(intersect, id)
		}
	}

	e.sink.Publish(event.Event{
		Kind:        event.KindIncrementalExecutionStarted,
		ExecutionID: e.executionID,
		NodeID:      affected,
		Message:     "dirty set intersected with demanded terminals",
		Timestamp:   e.now(),
		Output:      intersect,
	})

	return e.DemandAll(ctx, demandedTerminals), nil
}

// propagateDirty invalidates nodeID and every node forward-reachable
// from it, returning the full dirty set (nodeID included).
func (e *Engine) propagateDirty(nodeID string) []string {
	e.Invalidate(nodeID)
	descendants := e.graph.Descendants(nodeID)
	for _, d := range descendants {
		e.Invalidate(d)
	}
	dirty := make([]string, 0, len(descendants)+1)
	dirty = append(dirty, nodeID)
	dirty = append(dirty, descendants...)

	e.sink.Publish(event.Event{
		Kind:        event.KindGraphModified,
		ExecutionID: e.executionID,
		NodeID:      nodeID,
		Output:      dirty,
		Timestamp:   e.now(),
	})

	return dirty
}
