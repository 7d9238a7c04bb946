package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBadgerEngine_NodeRoundTrip(t *testing.T) {
	b := newTestBadger(t)

	node := &Node{
		ID:         "user_t1_alpha",
		Labels:     []string{"user_t1_Entity"},
		Properties: map[string]any{"description": "first"},
	}
	require.NoError(t, b.PutNode(node))

	got, err := b.GetNode("user_t1_alpha")
	require.NoError(t, err)
	assert.Equal(t, node.Labels, got.Labels)
	assert.Equal(t, "first", got.Properties["description"])

	_, err = b.GetNode("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerEngine_EdgesAndAdjacency(t *testing.T) {
	b := newTestBadger(t)

	require.NoError(t, b.PutNode(&Node{ID: "a"}))
	require.NoError(t, b.PutNode(&Node{ID: "b"}))
	require.NoError(t, b.PutNode(&Node{ID: "c"}))

	require.NoError(t, b.PutEdge(&Edge{ID: "e1", Type: "R", StartNode: "a", EndNode: "b"}))
	require.NoError(t, b.PutEdge(&Edge{ID: "e2", Type: "R", StartNode: "a", EndNode: "c"}))

	assert.ErrorIs(t, b.PutEdge(&Edge{ID: "e3", StartNode: "a", EndNode: "ghost"}), ErrNotFound)

	out, err := b.GetOutgoingEdges("a")
	require.NoError(t, err)
	assert.Len(t, out, 2)

	in, err := b.GetIncomingEdges("b")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, EdgeID("e1"), in[0].ID)

	// Endpoint move clears the stale index entry.
	require.NoError(t, b.PutEdge(&Edge{ID: "e1", Type: "R", StartNode: "a", EndNode: "c"}))
	in, err = b.GetIncomingEdges("b")
	require.NoError(t, err)
	assert.Empty(t, in)

	require.NoError(t, b.DeleteEdge("e1"))
	_, err = b.GetEdge("e1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerEngine_DeleteNodeRemovesEdges(t *testing.T) {
	b := newTestBadger(t)

	require.NoError(t, b.PutNode(&Node{ID: "a"}))
	require.NoError(t, b.PutNode(&Node{ID: "b"}))
	require.NoError(t, b.PutEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "b"}))

	require.NoError(t, b.DeleteNode("b"))

	_, err := b.GetEdge("e1")
	assert.ErrorIs(t, err, ErrNotFound)
	out, err := b.GetOutgoingEdges("a")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBadgerEngine_DeleteByPrefix(t *testing.T) {
	b := newTestBadger(t)

	for _, id := range []NodeID{"user_t1_a", "user_t1_b", "user_t2_a"} {
		require.NoError(t, b.PutNode(&Node{ID: id}))
	}
	require.NoError(t, b.PutEdge(&Edge{ID: "user_t1_a\x1fb", StartNode: "user_t1_a", EndNode: "user_t1_b"}))

	nodesDeleted, edgesDeleted, err := b.DeleteByPrefix("user_t1_")
	require.NoError(t, err)
	assert.Equal(t, int64(2), nodesDeleted)
	assert.Equal(t, int64(1), edgesDeleted)

	_, err = b.GetNode("user_t2_a")
	assert.NoError(t, err)

	nodeCount, err := b.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), nodeCount)
	edgeCount, err := b.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), edgeCount)
}

func TestBadgerEngine_WorksUnderNamespacedGraph(t *testing.T) {
	b := newTestBadger(t)

	alice := NewNamespacedGraph(b, "user_alice_")
	bob := NewNamespacedGraph(b, "user_bob_")

	require.NoError(t, alice.UpsertNode("X", map[string]any{"v": "a"}))
	exists, err := bob.HasNode("X")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = alice.HasNode("X")
	require.NoError(t, err)
	assert.True(t, exists)
}
