package docgraph

import "github.com/dagforge/engine/engineerr"

// Snapshot is the JSON-serializable Graph Document record: { id, name,
// description, nodes, edges, viewport }. The engine must round-trip any
// graph it emits, so Snapshot and LoadSnapshot are exact inverses of one
// another for a given Registry.
type Snapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Nodes       []Node   `json:"nodes"`
	Edges       []Edge   `json:"edges"`
	Viewport    Viewport `json:"viewport,omitempty"`
}

// Viewport is opaque editor camera state, carried through for
// round-tripping but never interpreted by the engine.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Snapshot returns a JSON-serializable copy of d, tagged with the given
// id/name/description/viewport metadata (the Document itself carries no
// such metadata; it is the caller's — the workflow façade's — job to
// track it per execution).
func (d *Document) Snapshot(id, name, description string, viewport Viewport) Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes := make([]Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		nodes = append(nodes, *n)
	}
	edges := make([]Edge, 0, len(d.edges))
	for _, e := range d.edges {
		edges = append(edges, *e)
	}
	return Snapshot{ID: id, Name: name, Description: description, Nodes: nodes, Edges: edges, Viewport: viewport}
}

// LoadSnapshot rebuilds a Document from snap against registry, preserving
// every node and edge id exactly as recorded (unlike AddNode/AddEdge,
// which always mint a fresh id) so that undo/redo and cross-process
// graph transfer don't perturb ids that demand.Engine's cache and undo
// history key on.
func LoadSnapshot(registry *Registry, snap Snapshot) (*Document, error) {
	d := NewDocument(registry)
	for _, n := range snap.Nodes {
		if _, ok := registry.Lookup(n.Type); !ok {
			return nil, engineerr.Newf(engineerr.Serialization, "docgraph: snapshot node %s has unregistered type %q", n.ID, n.Type).WithNode(n.ID)
		}
		data := n.Data
		if data == nil {
			data = map[string]any{}
		}
		d.nodes[n.ID] = &Node{ID: n.ID, Type: n.Type, Data: data, Position: n.Position, Version: n.Version}
	}
	for _, e := range snap.Edges {
		if _, ok := d.nodes[e.SourceNodeID]; !ok {
			return nil, engineerr.Newf(engineerr.Serialization, "docgraph: snapshot edge %s references unknown source node %s", e.ID, e.SourceNodeID).WithNode(e.SourceNodeID)
		}
		if _, ok := d.nodes[e.TargetNodeID]; !ok {
			return nil, engineerr.Newf(engineerr.Serialization, "docgraph: snapshot edge %s references unknown target node %s", e.ID, e.TargetNodeID).WithNode(e.TargetNodeID)
		}
		edge := e
		d.edges[e.ID] = &edge
		d.outEdges[e.SourceNodeID] = append(d.outEdges[e.SourceNodeID], e.ID)
		d.inEdges[e.TargetNodeID] = append(d.inEdges[e.TargetNodeID], e.ID)
	}
	return d, nil
}
