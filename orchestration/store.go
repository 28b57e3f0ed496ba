package orchestration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/log"
)

// wireNode/wireEdge/wireGraph are the JSON-serializable shapes for
// Graph, round-tripped through Store.Load/Save. They exist separately
// from Node/Edge/Graph so the on-disk field names stay stable even if
// the in-memory types grow unexported bookkeeping.
type wireEdge struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

type wireNode struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	GraphRef      string            `json:"graph_ref,omitempty"`
	Predicate     string            `json:"predicate,omitempty"`
	MaxIterations int               `json:"max_iterations,omitempty"`
	Inputs        map[string]string `json:"inputs,omitempty"`
}

type wireGraph struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Nodes       []wireNode `json:"nodes"`
	Edges       []wireEdge `json:"edges"`
}

func toWire(g *Graph) wireGraph {
	w := wireGraph{ID: g.ID, Name: g.Name, Description: g.Description}
	for _, n := range g.Nodes {
		w.Nodes = append(w.Nodes, wireNode{
			ID: n.ID, Kind: string(n.Kind), GraphRef: n.GraphRef,
			Predicate: n.Predicate, MaxIterations: n.MaxIterations, Inputs: n.Inputs,
		})
	}
	for _, e := range g.Edges {
		w.Edges = append(w.Edges, wireEdge{ID: e.ID, From: e.From, To: e.To, Label: e.Label})
	}
	return w
}

func fromWire(w wireGraph) *Graph {
	g := &Graph{ID: w.ID, Name: w.Name, Description: w.Description, Nodes: map[string]Node{}}
	for _, n := range w.Nodes {
		g.Nodes[n.ID] = Node{
			ID: n.ID, Kind: Kind(n.Kind), GraphRef: n.GraphRef,
			Predicate: n.Predicate, MaxIterations: n.MaxIterations, Inputs: n.Inputs,
		}
	}
	for _, e := range w.Edges {
		g.Edges = append(g.Edges, Edge{ID: e.ID, From: e.From, To: e.To, Label: e.Label})
	}
	return g
}

// Store persists orchestration Graphs one-file-per-graph under Dir,
// filename "{id}.json", matching the Orchestration Document layout.
type Store struct {
	dir    string
	logger log.Logger

	mu     sync.RWMutex
	graphs map[string]*Graph
}

// NewStore returns a Store rooted at dir. It does not touch the
// filesystem until Load is called.
func NewStore(dir string, logger log.Logger) *Store {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Store{dir: dir, logger: logger, graphs: map[string]*Graph{}}
}

// Load reads every *.json file in the store's directory, keeping every
// one that parses as a Graph and skipping malformed files with a
// logged warning rather than failing the whole load.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return engineerr.Newf(engineerr.IO, "orchestration store: read dir %s: %v", s.dir, err).WithCause(err)
	}

	loaded := map[string]*Graph{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("orchestration store: skipping %s: %v", entry.Name(), err)
			continue
		}
		var w wireGraph
		if err := json.Unmarshal(data, &w); err != nil {
			s.logger.Warn("orchestration store: skipping malformed graph file %s: %v", entry.Name(), err)
			continue
		}
		g := fromWire(w)
		if err := g.Validate(); err != nil {
			s.logger.Warn("orchestration store: skipping invalid graph file %s: %v", entry.Name(), err)
			continue
		}
		loaded[g.ID] = g
	}

	s.mu.Lock()
	s.graphs = loaded
	s.mu.Unlock()
	return nil
}

// Get returns the loaded graph with the given id.
func (s *Store) Get(id string) (*Graph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	return g, ok
}

// Put registers or replaces g in memory and persists it to disk as
// "{id}.json".
func (s *Store) Put(g *Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(toWire(g), "", "  ")
	if err != nil {
		return engineerr.Newf(engineerr.Serialization, "orchestration store: marshal graph %s: %v", g.ID, err).WithCause(err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return engineerr.Newf(engineerr.IO, "orchestration store: mkdir %s: %v", s.dir, err).WithCause(err)
	}
	path := filepath.Join(s.dir, g.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engineerr.Newf(engineerr.IO, "orchestration store: write %s: %v", path, err).WithCause(err)
	}

	s.mu.Lock()
	s.graphs[g.ID] = g
	s.mu.Unlock()
	return nil
}

// List returns the ids of every loaded graph.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.graphs))
	for id := range s.graphs {
		ids = append(ids, id)
	}
	return ids
}
