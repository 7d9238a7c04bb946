package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEngine_NodeLifecycle(t *testing.T) {
	m := NewMemoryEngine()
	defer m.Close()

	node := &Node{ID: "n1", Labels: []string{"Entity"}, Properties: map[string]any{"name": "Alice"}}
	require.NoError(t, m.PutNode(node))

	got, err := m.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Properties["name"])

	// Puts are upserts.
	node.Properties["name"] = "Bob"
	require.NoError(t, m.PutNode(node))
	got, err = m.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Properties["name"])

	require.NoError(t, m.DeleteNode("n1"))
	_, err = m.GetNode("n1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteNode("n1"), ErrNotFound)
}

func TestMemoryEngine_ReturnsCopies(t *testing.T) {
	m := NewMemoryEngine()
	defer m.Close()

	require.NoError(t, m.PutNode(&Node{ID: "n1", Properties: map[string]any{"k": "v"}}))

	got, err := m.GetNode("n1")
	require.NoError(t, err)
	got.Properties["k"] = "mutated"

	again, err := m.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Properties["k"], "caller mutation must not reach the store")
}

func TestMemoryEngine_EdgeLifecycle(t *testing.T) {
	m := NewMemoryEngine()
	defer m.Close()

	require.NoError(t, m.PutNode(&Node{ID: "a"}))
	require.NoError(t, m.PutNode(&Node{ID: "b"}))

	edge := &Edge{ID: "e1", Type: "RELATED_TO", StartNode: "a", EndNode: "b"}
	require.NoError(t, m.PutEdge(edge))

	// Missing endpoint rejected.
	assert.ErrorIs(t, m.PutEdge(&Edge{ID: "e2", StartNode: "a", EndNode: "ghost"}), ErrNotFound)

	out, err := m.GetOutgoingEdges("a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, EdgeID("e1"), out[0].ID)

	in, err := m.GetIncomingEdges("b")
	require.NoError(t, err)
	assert.Len(t, in, 1)

	// Deleting a node removes its edges.
	require.NoError(t, m.DeleteNode("b"))
	_, err = m.GetEdge("e1")
	assert.ErrorIs(t, err, ErrNotFound)
	out, err = m.GetOutgoingEdges("a")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryEngine_PutEdgeMovesEndpoints(t *testing.T) {
	m := NewMemoryEngine()
	defer m.Close()

	for _, id := range []NodeID{"a", "b", "c"} {
		require.NoError(t, m.PutNode(&Node{ID: id}))
	}
	require.NoError(t, m.PutEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "b"}))
	require.NoError(t, m.PutEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "c"}))

	in, err := m.GetIncomingEdges("b")
	require.NoError(t, err)
	assert.Empty(t, in, "stale adjacency entry after endpoint move")

	in, err = m.GetIncomingEdges("c")
	require.NoError(t, err)
	assert.Len(t, in, 1)
}

func TestMemoryEngine_DeleteByPrefix(t *testing.T) {
	m := NewMemoryEngine()
	defer m.Close()

	for _, id := range []NodeID{"t1_a", "t1_b", "t2_a"} {
		require.NoError(t, m.PutNode(&Node{ID: id}))
	}
	require.NoError(t, m.PutEdge(&Edge{ID: "t1_e", StartNode: "t1_a", EndNode: "t1_b"}))

	nodes, edges, err := m.DeleteByPrefix("t1_")
	require.NoError(t, err)
	assert.Equal(t, int64(2), nodes)
	assert.Equal(t, int64(1), edges)

	_, err = m.GetNode("t2_a")
	assert.NoError(t, err)

	count, err := m.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryEngine_Closed(t *testing.T) {
	m := NewMemoryEngine()
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.PutNode(&Node{ID: "n"}), ErrStorageClosed)
	_, err := m.GetNode("n")
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = m.AllNodes()
	assert.ErrorIs(t, err, ErrStorageClosed)
}
