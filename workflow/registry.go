package workflow

import (
	"context"
	"sync"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/taskexec"
)

// Registry holds every named workflow Executor a running orchestration
// graph can reference, and satisfies orchestration.DataGraphExecutor by
// dispatching a DataGraph node's GraphRef to the matching Executor.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]*Executor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: map[string]*Executor{}}
}

// Put registers x under name, replacing any Executor previously
// registered under that name.
func (r *Registry) Put(name string, x *Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = x
}

// Get returns the Executor registered under name.
func (r *Registry) Get(name string) (*Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	x, ok := r.executors[name]
	return x, ok
}

// Demand implements orchestration.DataGraphExecutor: it looks up
// graphName's Executor and demands terminal from it.
func (r *Registry) Demand(ctx context.Context, graphName, terminal string) (taskexec.Outputs, error) {
	x, ok := r.Get(graphName)
	if !ok {
		return nil, engineerr.Newf(engineerr.GraphNotFound, "workflow: no registered data-graph %q", graphName)
	}
	return x.Demand(ctx, terminal)
}
