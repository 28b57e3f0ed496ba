// Package docgraph implements the Graph Document: the serializable,
// user-editable node/edge/port model that the rest of the engine demands
// output from. It owns structural validation (port type compatibility,
// required literals, cycle prevention on edit) but never executes
// anything itself.
package docgraph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dagforge/engine/engineerr"
)

// Sentinel errors for simple lookups, mirroring the teacher's
// ErrNodeNotFound/ErrEntryPointNotSet posture for conditions that are
// plain "not found" rather than one of the closed engineerr.Kind values.
var (
	ErrNodeNotFound = errors.New("docgraph: node not found")
	ErrEdgeNotFound = errors.New("docgraph: edge not found")
	ErrTypeNotFound = errors.New("docgraph: node type not registered")
)

// DataType is the closed set of port data types. Compatibility between a
// source and target DataType is decided by Accepts.
type DataType string

const (
	TypeString    DataType = "string"
	TypeNumber    DataType = "number"
	TypeBoolean   DataType = "boolean"
	TypeImage     DataType = "image"
	TypeEmbedding DataType = "embedding"
	TypeJSON      DataType = "json"
	TypePrompt    DataType = "prompt"
	TypeTools     DataType = "tools"
	TypeStream    DataType = "stream"
	TypeComponent DataType = "component"
	TypeVectorDB  DataType = "vector_db"
	TypeAny       DataType = "any"
)

// Accepts reports whether a target port declared as targetType can accept
// a value flowing from a source port declared as sourceType. Any on
// either side is compatible with everything. A handful of subtypes widen
// implicitly: a Prompt satisfies a String target, a Stream of text
// satisfies a String target once fully materialized, a String satisfies
// a Prompt target, and a String satisfies a Component target (e.g.
// rendering a text-output node's value as a previewable component).
func Accepts(sourceType, targetType DataType) bool {
	if targetType == TypeAny || sourceType == TypeAny {
		return true
	}
	if sourceType == targetType {
		return true
	}
	switch {
	case targetType == TypeString && sourceType == TypePrompt:
		return true
	case targetType == TypeString && sourceType == TypeStream:
		return true
	case targetType == TypePrompt && sourceType == TypeString:
		return true
	case targetType == TypeComponent && sourceType == TypeString:
		return true
	}
	return false
}

// PortDefinition describes one port of a node type.
type PortDefinition struct {
	ID       string
	Label    string
	DataType DataType
	Required bool
	Multiple bool
}

// NodeTypeDescriptor declares the input/output ports a registered node
// type exposes, used to validate edits without needing a live task
// executor instance.
type NodeTypeDescriptor struct {
	Type    string
	Inputs  []PortDefinition
	Outputs []PortDefinition
}

func (d NodeTypeDescriptor) inputPort(id string) (PortDefinition, bool) {
	for _, p := range d.Inputs {
		if p.ID == id {
			return p, true
		}
	}
	return PortDefinition{}, false
}

func (d NodeTypeDescriptor) outputPort(id string) (PortDefinition, bool) {
	for _, p := range d.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return PortDefinition{}, false
}

// Registry is the set of known node type descriptors, keyed by type
// string. A Document validates structural edits against its Registry.
type Registry struct {
	mu              sync.RWMutex
	types           map[string]NodeTypeDescriptor
	optionProviders map[string]PortOptionsProvider
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]NodeTypeDescriptor)}
}

// Register adds or replaces a node type descriptor.
func (r *Registry) Register(d NodeTypeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[d.Type] = d
}

// Lookup returns the descriptor for typ, if registered.
func (r *Registry) Lookup(typ string) (NodeTypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typ]
	return d, ok
}

// Position is the node's 2D editor position, carried through for
// round-tripping but otherwise opaque to the engine.
type Position struct {
	X float64
	Y float64
}

// Node is one node in a Graph Document.
type Node struct {
	ID       string
	Type     string
	Data     map[string]any
	Position Position
	Version  uint64
}

// Edge connects a source node's output port to a target node's input
// port.
type Edge struct {
	ID           string
	SourceNodeID string
	SourcePortID string
	TargetNodeID string
	TargetPortID string
}

// Document is a mutable, structurally-validated graph of nodes and
// edges. All mutating methods are safe for concurrent use.
type Document struct {
	mu       sync.RWMutex
	registry *Registry
	nodes    map[string]*Node
	edges    map[string]*Edge
	// outEdges and inEdges index edges by node id for fast traversal.
	outEdges map[string][]string
	inEdges  map[string][]string
}

// NewDocument returns an empty Document validated against registry.
func NewDocument(registry *Registry) *Document {
	return &Document{
		registry: registry,
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		outEdges: make(map[string][]string),
		inEdges:  make(map[string][]string),
	}
}

// AddNode inserts a new node of the given type with the given initial
// data and position, returning its generated id.
func (d *Document) AddNode(typ string, data map[string]any, pos Position) (string, error) {
	if _, ok := d.registry.Lookup(typ); !ok {
		return "", fmt.Errorf("%w: %s", ErrTypeNotFound, typ)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.NewString()
	if data == nil {
		data = make(map[string]any)
	}
	d.nodes[id] = &Node{ID: id, Type: typ, Data: data, Position: pos, Version: 1}
	return id, nil
}

// RemoveNode deletes a node and every edge touching it.
func (d *Document) RemoveNode(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for _, edgeID := range append(append([]string{}, d.outEdges[id]...), d.inEdges[id]...) {
		e := d.edges[edgeID]
		d.removeEdgeLocked(edgeID)
		if e == nil {
			continue
		}
		// The far endpoint of each severed edge loses an incident edge
		// too, even though it isn't the node being removed.
		if other, ok := d.nodes[e.TargetNodeID]; ok && e.TargetNodeID != id {
			other.Version++
		}
		if other, ok := d.nodes[e.SourceNodeID]; ok && e.SourceNodeID != id {
			other.Version++
		}
	}
	delete(d.nodes, id)
	delete(d.outEdges, id)
	delete(d.inEdges, id)
	return nil
}

// UpdateNodeData merges patch into the node's data and bumps its
// version. A key that names a required input port with no edge feeding
// it is rejected with MissingInput when its value is nil; other keys are
// merged without validation.
func (d *Document) UpdateNodeData(id string, patch map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	desc, _ := d.registry.Lookup(node.Type)
	for k, v := range patch {
		if port, isPort := desc.inputPort(k); isPort {
			if port.Required && v == nil && !d.hasIncomingEdgeLocked(id, port.ID) {
				return engineerr.New(engineerr.MissingInput,
					fmt.Sprintf("port %q on node %s is required", port.ID, id)).WithNode(id)
			}
		}
		node.Data[k] = v
	}
	node.Version++
	return nil
}

// AddEdge connects sourcePort on source to targetPort on target,
// rejecting incompatible port types and edits that would create a cycle
// in the node graph.
func (d *Document) AddEdge(sourceNodeID, sourcePortID, targetNodeID, targetPortID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, ok := d.nodes[sourceNodeID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNodeNotFound, sourceNodeID)
	}
	tgt, ok := d.nodes[targetNodeID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNodeNotFound, targetNodeID)
	}

	srcDesc, _ := d.registry.Lookup(src.Type)
	tgtDesc, _ := d.registry.Lookup(tgt.Type)

	srcPort, ok := srcDesc.outputPort(sourcePortID)
	if !ok {
		return "", engineerr.New(engineerr.PortNotFound,
			fmt.Sprintf("node %s has no output port %q", sourceNodeID, sourcePortID)).WithNode(sourceNodeID)
	}
	tgtPort, ok := tgtDesc.inputPort(targetPortID)
	if !ok {
		return "", engineerr.New(engineerr.PortNotFound,
			fmt.Sprintf("node %s has no input port %q", targetNodeID, targetPortID)).WithNode(targetNodeID)
	}

	if !Accepts(srcPort.DataType, tgtPort.DataType) {
		return "", engineerr.New(engineerr.IncompatibleTypes,
			fmt.Sprintf("port %s (%s) cannot feed port %s (%s)",
				sourcePortID, srcPort.DataType, targetPortID, tgtPort.DataType)).WithNode(targetNodeID)
	}

	if d.wouldCreateCycleLocked(sourceNodeID, targetNodeID) {
		return "", engineerr.New(engineerr.WouldCreateCycle,
			fmt.Sprintf("edge %s->%s would create a cycle", sourceNodeID, targetNodeID)).WithNode(targetNodeID)
	}

	if !tgtPort.Multiple && d.hasIncomingEdgeLocked(targetNodeID, targetPortID) {
		d.removeEdgesIntoPortLocked(targetNodeID, targetPortID)
	}

	id := uuid.NewString()
	d.edges[id] = &Edge{
		ID:           id,
		SourceNodeID: sourceNodeID,
		SourcePortID: sourcePortID,
		TargetNodeID: targetNodeID,
		TargetPortID: targetPortID,
	}
	d.outEdges[sourceNodeID] = append(d.outEdges[sourceNodeID], id)
	d.inEdges[targetNodeID] = append(d.inEdges[targetNodeID], id)
	// Adding an incident edge changes what the target resolves as its
	// inputs even though no producer's own version changed, so the
	// target must be invalidated via its own version.
	tgt.Version++
	return id, nil
}

// RemoveEdge deletes an edge by id.
func (d *Document) RemoveEdge(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.edges[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	d.removeEdgeLocked(id)
	if tgt, ok := d.nodes[e.TargetNodeID]; ok {
		tgt.Version++
	}
	return nil
}

func (d *Document) removeEdgeLocked(id string) {
	e, ok := d.edges[id]
	if !ok {
		return
	}
	delete(d.edges, id)
	d.outEdges[e.SourceNodeID] = removeString(d.outEdges[e.SourceNodeID], id)
	d.inEdges[e.TargetNodeID] = removeString(d.inEdges[e.TargetNodeID], id)
}

func (d *Document) removeEdgesIntoPortLocked(targetNodeID, targetPortID string) {
	for _, edgeID := range append([]string{}, d.inEdges[targetNodeID]...) {
		if e := d.edges[edgeID]; e != nil && e.TargetPortID == targetPortID {
			d.removeEdgeLocked(edgeID)
		}
	}
}

func (d *Document) hasIncomingEdgeLocked(targetNodeID, targetPortID string) bool {
	for _, edgeID := range d.inEdges[targetNodeID] {
		if e := d.edges[edgeID]; e != nil && e.TargetPortID == targetPortID {
			return true
		}
	}
	return false
}

// wouldCreateCycleLocked reports whether adding an edge from->to would
// create a cycle, i.e. whether to can already reach from.
func (d *Document) wouldCreateCycleLocked(from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, to)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == from {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, edgeID := range d.outEdges[n] {
			if e := d.edges[edgeID]; e != nil {
				stack = append(stack, e.TargetNodeID)
			}
		}
	}
	return false
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Node returns a copy of the node with id, if present.
func (d *Document) Node(id string) (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns a snapshot slice of every node currently in the document.
func (d *Document) Nodes() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, *n)
	}
	return out
}

// Edges returns a snapshot slice of every edge currently in the document.
func (d *Document) Edges() []Edge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Edge, 0, len(d.edges))
	for _, e := range d.edges {
		out = append(out, *e)
	}
	return out
}

// InEdges returns the edges feeding into nodeID, optionally filtered to
// one target port when portID is non-empty.
func (d *Document) InEdges(nodeID, portID string) []Edge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Edge
	for _, edgeID := range d.inEdges[nodeID] {
		e := d.edges[edgeID]
		if e == nil {
			continue
		}
		if portID != "" && e.TargetPortID != portID {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// Registry returns the node type registry this document validates
// against.
func (d *Document) Registry() *Registry {
	return d.registry
}

// Descendants returns every node forward-reachable from nodeID via
// outgoing edges (not including nodeID itself), used by the demand
// engine to invalidate cached outputs on dirty propagation.
func (d *Document) Descendants(nodeID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	visited := make(map[string]bool)
	var queue []string
	queue = append(queue, nodeID)
	var out []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, edgeID := range d.outEdges[n] {
			e := d.edges[edgeID]
			if e == nil || visited[e.TargetNodeID] {
				continue
			}
			visited[e.TargetNodeID] = true
			out = append(out, e.TargetNodeID)
			queue = append(queue, e.TargetNodeID)
		}
	}
	return out
}
