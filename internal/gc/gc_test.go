package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkessler/corelang/internal/heap"
	"github.com/dkessler/corelang/internal/resource"
)

func newTestMonitor(t *testing.T) *resource.Monitor {
	t.Helper()
	mon, err := resource.NewMonitor(resource.Testing())
	require.NoError(t, err)
	return mon
}

func defaultConfig() Config {
	return Config{MaxTraversalDepth: 64, MaxSetSize: 1000, IncrementalWorkBudget: 10_000, Watermark: 0.8}
}

type node struct {
	refs []heap.ObjectID
}

func (n *node) TraceRefs() []heap.ObjectID { return n.refs }

func TestCollect_NoCandidatesIsNoOp(t *testing.T) {
	mon := newTestMonitor(t)
	h := heap.New(mon, nil, nil)
	c := New(h, mon, nil, nil, defaultConfig())

	freed, err := c.Collect(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, freed)
}

func TestCollect_FreesUnreachableCycle(t *testing.T) {
	mon := newTestMonitor(t)
	h := heap.New(mon, nil, nil)

	aID, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)
	bID, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)

	h.Inspect(aID) // warm lookup, no-op
	aObj, _ := h.Upgrade(aID)
	aObj.(*node).refs = []heap.ObjectID{bID}
	bObj, _ := h.Upgrade(bID)
	bObj.(*node).refs = []heap.ObjectID{aID}

	// a and b form a cycle holding each other alive with strong refs; drop
	// the external reference each started with and register them as
	// possibly cyclic, as the owning container would on destruction.
	h.Clone(aID) // simulate b's strong ref to a
	h.Clone(bID) // simulate a's strong ref to b
	h.Drop(aID)  // drop the original external strong ref to a
	h.Drop(bID)  // drop the original external strong ref to b

	h.RegisterPossiblyCyclic(aID)
	h.RegisterPossiblyCyclic(bID)

	c := New(h, mon, nil, nil, defaultConfig())
	freed, err := c.Collect(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, freed)

	_, ok := h.Upgrade(aID)
	assert.False(t, ok)
	_, ok = h.Upgrade(bID)
	assert.False(t, ok)
}

func TestCollect_RetainsCycleWithExternalReference(t *testing.T) {
	mon := newTestMonitor(t)
	h := heap.New(mon, nil, nil)

	aID, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)
	bID, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)

	aObj, _ := h.Upgrade(aID)
	aObj.(*node).refs = []heap.ObjectID{bID}
	bObj, _ := h.Upgrade(bID)
	bObj.(*node).refs = []heap.ObjectID{aID}

	h.Clone(aID) // b -> a
	h.Clone(bID) // a -> b
	h.Drop(bID)  // drop b's original external ref, a's internal ref still lives

	// a keeps its original external strong ref: an outside holder still
	// reaches the cycle through a.
	h.RegisterPossiblyCyclic(aID)
	h.RegisterPossiblyCyclic(bID)

	c := New(h, mon, nil, nil, defaultConfig())
	freed, err := c.Collect(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, freed, "a cycle reachable from outside must be restored, not collected")

	_, ok := h.Upgrade(aID)
	assert.True(t, ok)
	_, ok = h.Upgrade(bID)
	assert.True(t, ok)
}

func TestCollect_RestoresChildOfRootWithNoInSubgraphInboundEdges(t *testing.T) {
	mon := newTestMonitor(t)
	h := heap.New(mon, nil, nil)

	// q is reachable only through p; p itself has no in-candidate-set
	// inbound edge (its sole strong ref is an external owner's), so Phase A
	// never decrements p's scratch count away from beforeStrong. The outer
	// restore loop must still walk p's children on this first visit.
	qID, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)
	pID, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)

	pObj, _ := h.Upgrade(pID)
	pObj.(*node).refs = []heap.ObjectID{qID}

	h.RegisterPossiblyCyclic(pID)

	c := New(h, mon, nil, nil, defaultConfig())
	freed, err := c.Collect(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, freed, "q is reachable from live p and must not be collected")

	_, ok := h.Upgrade(pID)
	assert.True(t, ok)
	_, ok = h.Upgrade(qID)
	assert.True(t, ok, "q must survive: it is reachable from externally-rooted p")
}

func TestCollect_AbortsWhenCandidateSetExceedsMaxSetSize(t *testing.T) {
	mon := newTestMonitor(t)
	h := heap.New(mon, nil, nil)
	id, err := h.Alloc("Node", 8, &node{}, nil)
	require.NoError(t, err)
	h.RegisterPossiblyCyclic(id)

	cfg := defaultConfig()
	cfg.MaxSetSize = 0
	c := New(h, mon, nil, nil, cfg)

	_, err = c.Collect(time.Second)
	require.Error(t, err)
}

func TestCollect_AbortsOnUnrecognizedType(t *testing.T) {
	mon := newTestMonitor(t)
	h := heap.New(mon, nil, nil)
	id, err := h.Alloc("Corrupted", 8, &node{}, nil)
	require.NoError(t, err)
	h.Clone(id)
	h.Drop(id)
	h.RegisterPossiblyCyclic(id)

	registry := recognizerFunc(func(typeName string) bool { return typeName != "Corrupted" })
	c := New(h, mon, nil, registry, defaultConfig())

	_, err = c.Collect(time.Second)
	require.Error(t, err)
}

type recognizerFunc func(string) bool

func (f recognizerFunc) Recognized(typeName string) bool { return f(typeName) }
