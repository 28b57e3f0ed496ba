// Package demand implements the Demand Engine: the pull-based scheduler
// that produces a node's outputs by recursively producing its
// dependencies, caching results keyed by a dependency-version vector,
// and re-using them until an edit invalidates them.
package demand

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dagforge/engine/docgraph"
	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/sharedctx"
	"github.com/dagforge/engine/taskexec"
)

// CachedOutput is one node's memoized result, valid only while its own
// node version and every resolved producer's version stay unchanged.
type CachedOutput struct {
	ProducedAtNodeVersion uint64
	DependencyVersions    map[string]uint64
	Outputs               taskexec.Outputs
	CompletedAt           time.Time
}

// Config configures a new Engine.
type Config struct {
	Graph       *docgraph.Document
	Executor    taskexec.Executor
	Sink        event.Sink
	SharedCtx   *sharedctx.Context
	Extensions  taskexec.Extensions
	ExecutionID string
	Logger      log.Logger
}

// Engine holds one execution's cache, in-flight coalescing group, and
// cancellation flag over a single Graph Document.
type Engine struct {
	graph       *docgraph.Document
	executor    taskexec.Executor
	sink        event.Sink
	sharedCtx   *sharedctx.Context
	extensions  taskexec.Extensions
	executionID string
	logger      log.Logger

	mu    sync.Mutex
	cache map[string]CachedOutput

	group     singleflight.Group
	cancelled atomic.Bool
}

// New returns an Engine over cfg.Graph. Sink defaults to event.NullSink,
// SharedCtx to a fresh sharedctx.Context, and Logger to a no-op logger if
// left unset.
func New(cfg Config) *Engine {
	if cfg.Sink == nil {
		cfg.Sink = event.NullSink{}
	}
	if cfg.SharedCtx == nil {
		cfg.SharedCtx = sharedctx.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = &log.NoOpLogger{}
	}
	if cfg.Extensions == nil {
		cfg.Extensions = taskexec.Extensions{}
	}
	return &Engine{
		graph:       cfg.Graph,
		executor:    cfg.Executor,
		sink:        cfg.Sink,
		sharedCtx:   cfg.SharedCtx,
		extensions:  cfg.Extensions,
		executionID: cfg.ExecutionID,
		logger:      cfg.Logger,
		cache:       make(map[string]CachedOutput),
	}
}

// Cancel flips the cooperative cancellation flag. All live and future
// demands on this Engine fail with engineerr.Cancelled.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (e *Engine) Cancelled() bool {
	return e.cancelled.Load()
}

// demandChain is the ordered set of node ids currently being resolved
// within one outermost Demand call, used purely for cycle detection.
// It is local to the call tree, so concurrent top-level demands never
// share one and cannot produce false-positive cycles across unrelated
// subtrees.
type demandChain []string

func (c demandChain) contains(id string) bool {
	for _, x := range c {
		if x == id {
			return true
		}
	}
	return false
}

func (c demandChain) push(id string) demandChain {
	next := make(demandChain, len(c)+1)
	copy(next, c)
	next[len(c)] = id
	return next
}

// Demand produces nodeID's outputs, recursively demanding its
// dependencies as needed.
func (e *Engine) Demand(ctx context.Context, nodeID string) (taskexec.Outputs, error) {
	return e.demand(ctx, nodeID, demandChain{})
}

func (e *Engine) demand(ctx context.Context, nodeID string, chain demandChain) (taskexec.Outputs, error) {
	if e.cancelled.Load() {
		return nil, engineerr.New(engineerr.Cancelled, "execution cancelled").WithNode(nodeID)
	}
	if chain.contains(nodeID) {
		path := append(append([]string{}, chain...), nodeID)
		return nil, engineerr.Newf(engineerr.CycleDetected, "cycle detected: %v", path).WithNode(nodeID)
	}

	if out, ok, err := e.cachedOutputs(nodeID); err != nil {
		return nil, err
	} else if ok {
		return out, nil
	}

	nextChain := chain.push(nodeID)
	result, err, _ := e.group.Do(nodeID, func() (any, error) {
		return e.execute(ctx, nodeID, nextChain)
	})
	if err != nil {
		return nil, err
	}
	return result.(taskexec.Outputs), nil
}

// cachedOutputs returns a cache hit for nodeID, if cache[nodeID] is
// still valid against the live graph.
func (e *Engine) cachedOutputs(nodeID string) (taskexec.Outputs, bool, error) {
	e.mu.Lock()
	entry, ok := e.cache[nodeID]
	e.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	node, ok := e.graph.Node(nodeID)
	if !ok {
		return nil, false, nil
	}
	if entry.ProducedAtNodeVersion != node.Version {
		return nil, false, nil
	}
	for src, ver := range entry.DependencyVersions {
		srcNode, ok := e.graph.Node(src)
		if !ok || srcNode.Version != ver {
			return nil, false, nil
		}
	}
	return entry.Outputs, true, nil
}

// execute resolves nodeID's inputs and dispatches to the task executor.
// It is only ever run once per node per coalesced demand, via
// singleflight.
func (e *Engine) execute(ctx context.Context, nodeID string, chain demandChain) (taskexec.Outputs, error) {
	if e.cancelled.Load() {
		return nil, engineerr.New(engineerr.Cancelled, "execution cancelled").WithNode(nodeID)
	}

	node, ok := e.graph.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", docgraph.ErrNodeNotFound, nodeID)
	}
	desc, _ := e.graph.Registry().Lookup(node.Type)

	inputs := taskexec.Inputs{}
	depVersions := map[string]uint64{}

	for _, port := range desc.Inputs {
		edges := e.graph.InEdges(nodeID, port.ID)
		sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

		switch {
		case len(edges) == 0:
			literal, hasLiteral := node.Data[port.ID]
			if port.Required && !hasLiteral {
				return nil, engineerr.New(engineerr.MissingInput,
					fmt.Sprintf("port %q on node %s has no edge and no literal", port.ID, nodeID)).WithNode(nodeID)
			}
			if hasLiteral {
				inputs[port.ID] = literal
			}
		case port.Multiple:
			for i, edge := range edges {
				out, err := e.demand(ctx, edge.SourceNodeID, chain)
				if err != nil {
					return nil, engineerr.Newf(engineerr.ExecutionFailed, "port %q: %v", port.ID, err).WithNode(nodeID).WithCause(err)
				}
				srcNode, _ := e.graph.Node(edge.SourceNodeID)
				depVersions[edge.SourceNodeID] = srcNode.Version
				inputs[fmt.Sprintf("%s.%d", port.ID, i)] = out[edge.SourcePortID]
			}
		default:
			if len(edges) > 1 {
				e.logger.Warn("node %s port %q has %d incoming edges on a single-valued port; using the first by edge id", nodeID, port.ID, len(edges))
			}
			edge := edges[0]
			out, err := e.demand(ctx, edge.SourceNodeID, chain)
			if err != nil {
				return nil, engineerr.Newf(engineerr.ExecutionFailed, "port %q: %v", port.ID, err).WithNode(nodeID).WithCause(err)
			}
			srcNode, _ := e.graph.Node(edge.SourceNodeID)
			depVersions[edge.SourceNodeID] = srcNode.Version
			inputs[port.ID] = out[edge.SourcePortID]
		}
	}

	if e.cancelled.Load() {
		return nil, engineerr.New(engineerr.Cancelled, "execution cancelled").WithNode(nodeID)
	}

	e.sink.Publish(event.Event{Kind: event.KindTaskStarted, ExecutionID: e.executionID, NodeID: nodeID, Timestamp: e.now()})

	taskCtx := &taskexec.Context{
		Context:    ctx,
		Node:       node,
		Inputs:     inputs,
		Extensions: e.extensions,
	}
	outputs, err := e.executor.Execute(taskCtx)
	if err != nil {
		if waitErr, ok := asWaitForInput(err); ok {
			e.sharedCtx.Set(sharedctx.Key{TaskID: nodeID, Scope: "pending"}, waitErr.Prompt)
			e.sink.Publish(event.Event{Kind: event.KindWaitingForInput, ExecutionID: e.executionID, NodeID: nodeID, Prompt: waitErr.Prompt, Timestamp: e.now()})
			return nil, engineerr.New(engineerr.Paused, waitErr.Prompt).WithNode(nodeID)
		}
		e.sink.Publish(event.Event{Kind: event.KindTaskFailed, ExecutionID: e.executionID, NodeID: nodeID, Err: err, Timestamp: e.now()})
		return nil, err
	}

	e.sharedCtx.Delete(sharedctx.Key{TaskID: nodeID, Scope: "pending"})
	e.sink.Publish(event.Event{Kind: event.KindTaskCompleted, ExecutionID: e.executionID, NodeID: nodeID, Output: outputs, Timestamp: e.now()})

	e.mu.Lock()
	e.cache[nodeID] = CachedOutput{
		ProducedAtNodeVersion: node.Version,
		DependencyVersions:    depVersions,
		Outputs:               outputs,
		CompletedAt:           e.now(),
	}
	e.mu.Unlock()

	return outputs, nil
}

func asWaitForInput(err error) (*taskexec.WaitForInput, bool) {
	for err != nil {
		if w, ok := err.(*taskexec.WaitForInput); ok {
			return w, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

func (e *Engine) now() time.Time {
	return time.Now()
}

// Invalidate drops nodeID's cache entry directly, used by dirty
// propagation after an edit even though the next demand would also
// detect the version mismatch on its own; this avoids holding memory for
// a result already known stale.
func (e *Engine) Invalidate(nodeID string) {
	e.mu.Lock()
	delete(e.cache, nodeID)
	e.mu.Unlock()
}

// ReplaceGraph swaps the Engine's Graph Document for graph and drops
// every cached output, used when a caller (the workflow façade's
// undo/redo) restores a snapshot whose node ids don't correspond to the
// previous document's cache entries.
func (e *Engine) ReplaceGraph(graph *docgraph.Document) {
	e.mu.Lock()
	e.graph = graph
	e.cache = make(map[string]CachedOutput)
	e.mu.Unlock()
}
