package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/taskexec"
)

// DataGraphExecutor runs a named data-graph terminal demand. workflow.Registry
// satisfies this by dispatching to the workflow.Executor registered under
// the graph name.
type DataGraphExecutor interface {
	Demand(ctx context.Context, graphName string, terminalNodeID string) (taskexec.Outputs, error)
}

// Predicate evaluates a named boolean condition over the orchestration
// context for Condition and Loop nodes.
type Predicate func(ctx Context) (bool, error)

// Context is the orchestration-level key/value space Condition
// predicates read and DataGraph nodes publish outputs into. Keys are
// either a bare port name or "{node_id}.{port}".
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns an empty orchestration context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Get returns the value stored at key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value at key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Snapshot returns a shallow copy of the context's values, used to hand
// a read-only view to Predicate evaluation.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Config configures an Executor.
type Config struct {
	Store      *Store
	DataGraphs DataGraphExecutor
	Predicates map[string]Predicate
	Sink       event.Sink
	Logger     log.Logger
}

// Executor interprets a single orchestration Graph: it walks Start to an
// End following the Condition/Loop/DataGraph/Merge routing contract in
// §4.11, resolving each DataGraph node's referenced data-graph through
// Store and running it via the injected DataGraphExecutor.
type Executor struct {
	store      *Store
	dataGraphs DataGraphExecutor
	predicates map[string]Predicate
	sink       event.Sink
	logger     log.Logger
}

// New returns an Executor over cfg.
func New(cfg Config) *Executor {
	if cfg.Sink == nil {
		cfg.Sink = event.NullSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = &log.NoOpLogger{}
	}
	if cfg.Predicates == nil {
		cfg.Predicates = map[string]Predicate{}
	}
	return &Executor{
		store:      cfg.Store,
		dataGraphs: cfg.DataGraphs,
		predicates: cfg.Predicates,
		sink:       cfg.Sink,
		logger:     cfg.Logger,
	}
}

// loopState tracks one Loop node's iteration count across repeated
// visits within a single Run.
type loopState struct {
	iterations int
}

// Run executes g from its Start node to an End node, returning the
// final orchestration context.
func (ex *Executor) Run(ctx context.Context, g *Graph, executionID string) (*Context, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	start, _ := g.Start()

	octx := NewContext()
	loops := map[string]*loopState{}
	current := start.ID

	ex.sink.Publish(event.Event{Kind: event.KindOrchestrationStarted, ExecutionID: executionID, NodeID: start.ID})

	for {
		node, ok := g.Nodes[current]
		if !ok {
			err := errWithNode(ErrUnknownNode, current)
			ex.sink.Publish(event.Event{Kind: event.KindOrchestrationFailed, ExecutionID: executionID, NodeID: current, Err: err})
			return nil, err
		}

		ex.sink.Publish(event.Event{Kind: event.KindOrchestrationNodeEntered, ExecutionID: executionID, NodeID: current})

		if ctx.Err() != nil {
			err := engineerr.New(engineerr.Cancelled, "orchestration run cancelled").WithNode(current)
			ex.sink.Publish(event.Event{Kind: event.KindOrchestrationFailed, ExecutionID: executionID, NodeID: current, Err: err})
			return nil, err
		}

		var label string
		var stepErr error

		switch node.Kind {
		case KindStart:
			label = "next"
		case KindEnd:
			ex.sink.Publish(event.Event{Kind: event.KindOrchestrationNodeExited, ExecutionID: executionID, NodeID: current})
			ex.sink.Publish(event.Event{Kind: event.KindOrchestrationCompleted, ExecutionID: executionID, NodeID: current})
			return octx, nil
		case KindDataGraph:
			label, stepErr = ex.runDataGraph(ctx, node, octx, executionID)
		case KindCondition:
			label, stepErr = ex.evalCondition(octx, node)
		case KindLoop:
			label, stepErr = ex.stepLoop(octx, node, loops)
		case KindMerge:
			label = "next"
		default:
			stepErr = engineerr.Newf(engineerr.ExecutionFailed, "unknown orchestration node kind %q", node.Kind).WithNode(current)
		}

		if stepErr != nil {
			ex.sink.Publish(event.Event{Kind: event.KindOrchestrationFailed, ExecutionID: executionID, NodeID: current, Err: stepErr})
			return nil, stepErr
		}

		ex.sink.Publish(event.Event{Kind: event.KindOrchestrationNodeExited, ExecutionID: executionID, NodeID: current})

		edges := g.outgoing(current, label)
		if len(edges) == 0 {
			if label == "exhausted" {
				err := engineerr.Newf(engineerr.ExecutionFailed, "loop %s exhausted max_iterations with no exhausted edge", current).WithNode(current)
				ex.sink.Publish(event.Event{Kind: event.KindOrchestrationFailed, ExecutionID: executionID, NodeID: current, Err: err})
				return nil, err
			}
			err := fmt.Errorf("%w: node %s has no outgoing %q edge", ErrNoOutgoingEdge, current, label)
			ex.sink.Publish(event.Event{Kind: event.KindOrchestrationFailed, ExecutionID: executionID, NodeID: current, Err: err})
			return nil, err
		}

		// A Merge node coalesces multiple inbound paths into one; since
		// this executor runs a single active path at a time (the graph
		// has no concurrent fan-out per §4.11), arriving at a Merge
		// from any inbound edge is sufficient to proceed — the
		// deterministic-by-inbound-edge-id ordering (g.inbound) only
		// matters when a future concurrent executor races multiple
		// paths into the same Merge simultaneously.
		current = edges[0].To
	}
}

func (ex *Executor) runDataGraph(ctx context.Context, node Node, octx *Context, executionID string) (string, error) {
	if ex.dataGraphs == nil {
		return "", engineerr.New(engineerr.ExecutionFailed, "orchestration: no DataGraphExecutor configured").WithNode(node.ID)
	}
	if ex.store == nil {
		return "", engineerr.New(engineerr.ExecutionFailed, "orchestration: no graph store configured").WithNode(node.ID)
	}
	if _, ok := ex.store.Get(node.GraphRef); !ok {
		return "", engineerr.Newf(engineerr.GraphNotFound, "orchestration: data-graph %q not found", node.GraphRef).WithNode(node.ID)
	}

	terminal, ok := node.Inputs["terminal"]
	if !ok {
		return "", engineerr.Newf(engineerr.ExecutionFailed, "orchestration: DataGraph node %s has no \"terminal\" input mapping", node.ID).WithNode(node.ID)
	}

	outputs, err := ex.dataGraphs.Demand(ctx, node.GraphRef, terminal)
	if err != nil {
		return "", engineerr.Newf(engineerr.ExecutionFailed, "data-graph %q: %v", node.GraphRef, err).WithNode(node.ID).WithCause(err)
	}

	for port, value := range outputs {
		octx.Set(fmt.Sprintf("%s.%s", node.ID, port), value)
		octx.Set(port, value)
	}
	return "next", nil
}

func (ex *Executor) evalCondition(octx *Context, node Node) (string, error) {
	pred, ok := ex.predicates[node.Predicate]
	if !ok {
		return "", engineerr.Newf(engineerr.ExecutionFailed, "%v: %s", ErrUnknownPredicate, node.Predicate).WithNode(node.ID)
	}
	ok, err := pred(*octx)
	if err != nil {
		return "", engineerr.Newf(engineerr.ExecutionFailed, "condition %q: %v", node.Predicate, err).WithNode(node.ID).WithCause(err)
	}
	if ok {
		return "true", nil
	}
	return "false", nil
}

func (ex *Executor) stepLoop(octx *Context, node Node, loops map[string]*loopState) (string, error) {
	st, ok := loops[node.ID]
	if !ok {
		st = &loopState{}
		loops[node.ID] = st
	}

	if node.MaxIterations > 0 && st.iterations >= node.MaxIterations {
		return "exhausted", nil
	}

	pred, ok := ex.predicates[node.Predicate]
	if !ok {
		return "", engineerr.Newf(engineerr.ExecutionFailed, "%v: %s", ErrUnknownPredicate, node.Predicate).WithNode(node.ID)
	}
	exit, err := pred(*octx)
	if err != nil {
		return "", engineerr.Newf(engineerr.ExecutionFailed, "loop exit predicate %q: %v", node.Predicate, err).WithNode(node.ID).WithCause(err)
	}
	if exit {
		return "exit", nil
	}

	st.iterations++
	return "iter", nil
}
