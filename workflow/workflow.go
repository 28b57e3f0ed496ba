// Package workflow implements the Workflow Executor façade: it binds a
// Graph Document, a demand engine, a task-executor chain, an event
// sink, and an execution id behind the small public surface real
// callers (the CLI, an editor host, the orchestration executor) drive a
// running graph through.
package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dagforge/engine/demand"
	"github.com/dagforge/engine/docgraph"
	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/taskexec"
	"github.com/dagforge/engine/undo"
)

// Config configures a new Executor.
type Config struct {
	ID          string
	Name        string
	Description string
	Registry    *docgraph.Registry
	Graph       *docgraph.Document
	Executor    taskexec.Executor
	Sink        event.Sink
	Extensions  taskexec.Extensions
	ExecutionID string
	Logger      log.Logger
	// Undo is optional; when set, ApplyEdit pushes the pre-edit snapshot
	// onto it if it is empty, and the post-edit snapshot after each
	// successful edit.
	Undo *undo.Stack
}

// Executor is the Workflow Executor façade over one Graph Document.
type Executor struct {
	id        string
	registry  *docgraph.Registry
	engine    *demand.Engine
	undoStack *undo.Stack

	mu          sync.RWMutex
	graph       *docgraph.Document
	name        string
	description string
}

// New returns an Executor over cfg. Graph defaults to a fresh empty
// Document against Registry if left unset.
func New(cfg Config) *Executor {
	if cfg.Graph == nil {
		cfg.Graph = docgraph.NewDocument(cfg.Registry)
	}
	engine := demand.New(demand.Config{
		Graph:       cfg.Graph,
		Executor:    cfg.Executor,
		Sink:        cfg.Sink,
		Extensions:  cfg.Extensions,
		ExecutionID: cfg.ExecutionID,
		Logger:      cfg.Logger,
	})
	return &Executor{
		id:          cfg.ID,
		name:        cfg.Name,
		description: cfg.Description,
		registry:    cfg.Registry,
		graph:       cfg.Graph,
		engine:      engine,
		undoStack:   cfg.Undo,
	}
}

// ID returns the execution's graph id.
func (x *Executor) ID() string { return x.id }

// Demand produces terminalID's outputs, recursively demanding its
// dependencies as needed.
func (x *Executor) Demand(ctx context.Context, terminalID string) (taskexec.Outputs, error) {
	return x.engine.Demand(ctx, terminalID)
}

// DemandAll demands every terminal concurrently, collecting each
// terminal's own success or failure without aborting the others.
func (x *Executor) DemandAll(ctx context.Context, terminalIDs []string) []demand.Result {
	return x.engine.DemandAll(ctx, terminalIDs)
}

// ApplyEdit applies edit to the underlying Graph Document, propagates
// dirty invalidation, and re-demands every terminal in
// demandedTerminals. With an undo stack configured, the pre-edit
// snapshot is pushed first when the stack is empty, and the post-edit
// snapshot is pushed once edit succeeds.
func (x *Executor) ApplyEdit(ctx context.Context, edit demand.Edit, demandedTerminals []string) ([]demand.Result, error) {
	if x.undoStack != nil && x.undoStack.Len() == 0 {
		data, err := json.Marshal(x.Snapshot())
		if err != nil {
			return nil, engineerr.New(engineerr.Serialization, "marshaling pre-edit snapshot").WithCause(err)
		}
		if err := x.undoStack.Push(ctx, data); err != nil {
			return nil, err
		}
	}
	return x.engine.ApplyEditAndIncremental(ctx, func() (string, error) {
		affected, err := edit()
		if err != nil || x.undoStack == nil {
			return affected, err
		}
		data, err := json.Marshal(x.Snapshot())
		if err != nil {
			return affected, engineerr.New(engineerr.Serialization, "marshaling post-edit snapshot").WithCause(err)
		}
		return affected, x.undoStack.Push(ctx, data)
	}, demandedTerminals)
}

// Snapshot returns the current Graph Document as a JSON-serializable
// record.
func (x *Executor) Snapshot() docgraph.Snapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Snapshot(x.id, x.name, x.description, docgraph.Viewport{})
}

// RestoreSnapshot replaces the Executor's Graph Document with the one
// described by snap (used by undo/redo), invalidating every cached
// output since every node's identity has changed out from under the
// demand engine's cache.
func (x *Executor) RestoreSnapshot(snap docgraph.Snapshot) error {
	doc, err := docgraph.LoadSnapshot(x.registry, snap)
	if err != nil {
		return err
	}
	x.mu.Lock()
	x.graph = doc
	x.name = snap.Name
	x.description = snap.Description
	x.mu.Unlock()
	x.engine.ReplaceGraph(doc)
	return nil
}

// Undo moves the undo stack back one entry and restores that snapshot.
func (x *Executor) Undo(ctx context.Context) error {
	if x.undoStack == nil {
		return engineerr.New(engineerr.Disabled, "workflow: no undo stack configured")
	}
	data, err := x.undoStack.Undo(ctx)
	if err != nil {
		return err
	}
	return x.restoreFromBytes(data)
}

// Redo moves the undo stack forward one entry and restores that
// snapshot.
func (x *Executor) Redo(ctx context.Context) error {
	if x.undoStack == nil {
		return engineerr.New(engineerr.Disabled, "workflow: no undo stack configured")
	}
	data, err := x.undoStack.Redo(ctx)
	if err != nil {
		return err
	}
	return x.restoreFromBytes(data)
}

func (x *Executor) restoreFromBytes(data []byte) error {
	var snap docgraph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return engineerr.New(engineerr.Serialization, "unmarshaling undo snapshot").WithCause(err)
	}
	return x.RestoreSnapshot(snap)
}

// Cancel flips the cooperative cancellation flag. All live and future
// demands on this Executor fail with engineerr.Cancelled.
func (x *Executor) Cancel() {
	x.engine.Cancel()
}

// Cancelled reports whether Cancel has been called.
func (x *Executor) Cancelled() bool {
	return x.engine.Cancelled()
}
