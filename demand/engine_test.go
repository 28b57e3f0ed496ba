package demand_test

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/demand"
	"github.com/dagforge/engine/docgraph"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/taskexec"
)

func newTestGraph() (*docgraph.Document, *docgraph.Registry) {
	registry := docgraph.NewRegistry()
	registry.Register(docgraph.NodeTypeDescriptor{
		Type:    "source",
		Outputs: []docgraph.PortDefinition{{ID: "text", DataType: docgraph.TypeString}},
	})
	registry.Register(docgraph.NodeTypeDescriptor{
		Type:   "sink",
		Inputs: []docgraph.PortDefinition{{ID: "text", DataType: docgraph.TypeString, Required: true}},
	})
	registry.Register(docgraph.NodeTypeDescriptor{
		Type:   "collector",
		Inputs: []docgraph.PortDefinition{{ID: "in", DataType: docgraph.TypeAny, Required: true, Multiple: true}},
	})
	return docgraph.NewDocument(registry), registry
}

// countingExecutor counts invocations per node id and echoes the node's
// literal "text" data (for "source" nodes) or passes through inputs.
type countingExecutor struct {
	counts map[string]*int64
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{counts: map[string]*int64{}}
}

func (c *countingExecutor) countFor(nodeID string) *int64 {
	n, ok := c.counts[nodeID]
	if !ok {
		n = new(int64)
		c.counts[nodeID] = n
	}
	return n
}

func (c *countingExecutor) Execute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	atomic.AddInt64(c.countFor(ctx.Node.ID), 1)
	switch ctx.Node.Type {
	case "source":
		text, _ := ctx.Node.Data["text"].(string)
		return taskexec.Outputs{"text": text}, nil
	case "sink":
		return taskexec.Outputs{"text": ctx.Inputs["text"]}, nil
	case "collector":
		return taskexec.Outputs{"in": ctx.Inputs}, nil
	}
	return taskexec.Outputs{}, nil
}

func TestDemandCachesSecondCall(t *testing.T) {
	t.Parallel()
	graph, _ := newTestGraph()
	src, err := graph.AddNode("source", map[string]any{"text": "hello"}, docgraph.Position{})
	require.NoError(t, err)
	dst, err := graph.AddNode("sink", nil, docgraph.Position{})
	require.NoError(t, err)
	_, err = graph.AddEdge(src, "text", dst, "text")
	require.NoError(t, err)

	exec := newCountingExecutor()
	engine := demand.New(demand.Config{Graph: graph, Executor: exec})

	out1, err := engine.Demand(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", out1["text"])

	out2, err := engine.Demand(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", out2["text"])

	assert.EqualValues(t, 1, atomic.LoadInt64(exec.countFor(src)))
	assert.EqualValues(t, 1, atomic.LoadInt64(exec.countFor(dst)))
}

func TestApplyEditInvalidatesDownstream(t *testing.T) {
	t.Parallel()
	graph, _ := newTestGraph()
	src, err := graph.AddNode("source", map[string]any{"text": "hello"}, docgraph.Position{})
	require.NoError(t, err)
	dst, err := graph.AddNode("sink", nil, docgraph.Position{})
	require.NoError(t, err)
	_, err = graph.AddEdge(src, "text", dst, "text")
	require.NoError(t, err)

	exec := newCountingExecutor()
	engine := demand.New(demand.Config{Graph: graph, Executor: exec})

	_, err = engine.Demand(context.Background(), dst)
	require.NoError(t, err)

	results, err := engine.ApplyEditAndIncremental(context.Background(), func() (string, error) {
		return src, graph.UpdateNodeData(src, map[string]any{"text": "world"})
	}, []string{dst})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "world", results[0].Outputs["text"])

	assert.EqualValues(t, 2, atomic.LoadInt64(exec.countFor(src)))
	assert.EqualValues(t, 2, atomic.LoadInt64(exec.countFor(dst)))
}

// AddEdge refuses any edit that would create a graph cycle
// (engineerr.WouldCreateCycle, tested in docgraph/graph_test.go);
// docgraph.LoadSnapshot performs no such check. Demand's own chain-based
// stack check in engine.go guards against a cycle either way, and is
// exercised directly in chain_internal_test.go.

func TestMultiplePortAggregatesInEdgeIDOrder(t *testing.T) {
	t.Parallel()
	graph, _ := newTestGraph()
	s1, err := graph.AddNode("source", map[string]any{"text": "a"}, docgraph.Position{})
	require.NoError(t, err)
	s2, err := graph.AddNode("source", map[string]any{"text": "b"}, docgraph.Position{})
	require.NoError(t, err)
	coll, err := graph.AddNode("collector", nil, docgraph.Position{})
	require.NoError(t, err)
	_, err = graph.AddEdge(s1, "text", coll, "in")
	require.NoError(t, err)
	_, err = graph.AddEdge(s2, "text", coll, "in")
	require.NoError(t, err)

	exec := newCountingExecutor()
	engine := demand.New(demand.Config{Graph: graph, Executor: exec})
	out, err := engine.Demand(context.Background(), coll)
	require.NoError(t, err)
	assert.NotNil(t, out["in"])
	inputs, ok := out["in"].(taskexec.Inputs)
	require.True(t, ok)
	edges := graph.InEdges(coll, "in")
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	texts := map[string]string{s1: "a", s2: "b"}
	for i, edge := range edges {
		assert.Equal(t, texts[edge.SourceNodeID], inputs[fmt.Sprintf("in.%d", i)])
	}
}

func TestCoalescesConcurrentDemands(t *testing.T) {
	t.Parallel()
	registry := docgraph.NewRegistry()
	registry.Register(docgraph.NodeTypeDescriptor{
		Type:    "slow",
		Outputs: []docgraph.PortDefinition{{ID: "value", DataType: docgraph.TypeAny}},
	})
	graph := docgraph.NewDocument(registry)
	n, err := graph.AddNode("slow", nil, docgraph.Position{})
	require.NoError(t, err)

	var calls int64
	exec := taskexec.ExecutorFunc(func(ctx *taskexec.Context) (taskexec.Outputs, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return taskexec.Outputs{"value": 42}, nil
	})
	engine := demand.New(demand.Config{Graph: graph, Executor: exec})

	results := make(chan taskexec.Outputs, 4)
	for i := 0; i < 4; i++ {
		go func() {
			out, err := engine.Demand(context.Background(), n)
			require.NoError(t, err)
			results <- out
		}()
	}
	for i := 0; i < 4; i++ {
		out := <-results
		assert.Equal(t, 42, out["value"])
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestCancelFailsFutureDemands(t *testing.T) {
	t.Parallel()
	graph, _ := newTestGraph()
	src, err := graph.AddNode("source", map[string]any{"text": "hi"}, docgraph.Position{})
	require.NoError(t, err)

	engine := demand.New(demand.Config{Graph: graph, Executor: newCountingExecutor()})
	engine.Cancel()

	_, err = engine.Demand(context.Background(), src)
	assert.Error(t, err)
}

func TestWaitForInputSuspendsAndDoesNotCache(t *testing.T) {
	t.Parallel()
	registry := docgraph.NewRegistry()
	registry.Register(docgraph.NodeTypeDescriptor{
		Type:    "approval",
		Outputs: []docgraph.PortDefinition{{ID: "ok", DataType: docgraph.TypeBoolean}},
	})
	graph := docgraph.NewDocument(registry)
	n, err := graph.AddNode("approval", nil, docgraph.Position{})
	require.NoError(t, err)

	var attempt int
	exec := taskexec.ExecutorFunc(func(ctx *taskexec.Context) (taskexec.Outputs, error) {
		attempt++
		if attempt == 1 {
			return nil, &taskexec.WaitForInput{Prompt: "approve?"}
		}
		return taskexec.Outputs{"ok": true}, nil
	})
	sink := event.NewInMemorySink()
	engine := demand.New(demand.Config{Graph: graph, Executor: exec, Sink: sink})

	_, err = engine.Demand(context.Background(), n)
	assert.Error(t, err)

	var sawWaiting bool
	for _, e := range sink.Events() {
		if e.Kind == event.KindWaitingForInput {
			sawWaiting = true
		}
	}
	assert.True(t, sawWaiting)

	out, err := engine.Demand(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}
