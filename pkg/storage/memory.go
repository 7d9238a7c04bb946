// MemoryEngine is a thread-safe in-memory Engine for testing and small
// datasets.
package storage

import (
	"strings"
	"sync"
)

// MemoryEngine is an in-memory implementation of Engine.
// It's useful for:
// - Unit testing (no disk I/O)
// - Single-process deployments without durability requirements
type MemoryEngine struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Adjacency indexes for efficient edge lookups
	outgoing map[NodeID]map[EdgeID]struct{}
	incoming map[NodeID]map[EdgeID]struct{}

	closed bool
}

// NewMemoryEngine creates a new in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[EdgeID]*Edge),
		outgoing: make(map[NodeID]map[EdgeID]struct{}),
		incoming: make(map[NodeID]map[EdgeID]struct{}),
	}
}

// PutNode creates or replaces a node.
func (m *MemoryEngine) PutNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	m.nodes[node.ID] = CopyNode(node)
	return nil
}

// GetNode retrieves a node by ID.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return nil, ErrNotFound
	}
	return CopyNode(node), nil
}

// DeleteNode removes a node and all its edges.
func (m *MemoryEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.nodes[id]; !exists {
		return ErrNotFound
	}

	for edgeID := range m.outgoing[id] {
		m.detachEdge(edgeID)
	}
	for edgeID := range m.incoming[id] {
		m.detachEdge(edgeID)
	}
	delete(m.outgoing, id)
	delete(m.incoming, id)
	delete(m.nodes, id)
	return nil
}

// detachEdge removes an edge from the edge map and both adjacency indexes.
// Caller must hold the write lock.
func (m *MemoryEngine) detachEdge(id EdgeID) {
	edge, exists := m.edges[id]
	if !exists {
		return
	}
	if out := m.outgoing[edge.StartNode]; out != nil {
		delete(out, id)
	}
	if in := m.incoming[edge.EndNode]; in != nil {
		delete(in, id)
	}
	delete(m.edges, id)
}

// PutEdge creates or replaces an edge. Both endpoints must exist.
func (m *MemoryEngine) PutEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.nodes[edge.StartNode]; !exists {
		return ErrNotFound
	}
	if _, exists := m.nodes[edge.EndNode]; !exists {
		return ErrNotFound
	}

	// Replacing an edge may move its endpoints; drop the old index entries.
	if _, exists := m.edges[edge.ID]; exists {
		m.detachEdge(edge.ID)
	}

	m.edges[edge.ID] = CopyEdge(edge)

	if m.outgoing[edge.StartNode] == nil {
		m.outgoing[edge.StartNode] = make(map[EdgeID]struct{})
	}
	m.outgoing[edge.StartNode][edge.ID] = struct{}{}

	if m.incoming[edge.EndNode] == nil {
		m.incoming[edge.EndNode] = make(map[EdgeID]struct{})
	}
	m.incoming[edge.EndNode][edge.ID] = struct{}{}

	return nil
}

// GetEdge retrieves an edge by ID.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edge, exists := m.edges[id]
	if !exists {
		return nil, ErrNotFound
	}
	return CopyEdge(edge), nil
}

// DeleteEdge removes an edge.
func (m *MemoryEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.edges[id]; !exists {
		return ErrNotFound
	}
	m.detachEdge(id)
	return nil
}

// GetOutgoingEdges returns all edges starting from the given node.
func (m *MemoryEngine) GetOutgoingEdges(id NodeID) ([]*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edgeIDs := m.outgoing[id]
	edges := make([]*Edge, 0, len(edgeIDs))
	for edgeID := range edgeIDs {
		if edge := m.edges[edgeID]; edge != nil {
			edges = append(edges, CopyEdge(edge))
		}
	}
	return edges, nil
}

// GetIncomingEdges returns all edges ending at the given node.
func (m *MemoryEngine) GetIncomingEdges(id NodeID) ([]*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edgeIDs := m.incoming[id]
	edges := make([]*Edge, 0, len(edgeIDs))
	for edgeID := range edgeIDs {
		if edge := m.edges[edgeID]; edge != nil {
			edges = append(edges, CopyEdge(edge))
		}
	}
	return edges, nil
}

// AllNodes returns every node in the storage.
func (m *MemoryEngine) AllNodes() ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	nodes := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		nodes = append(nodes, CopyNode(node))
	}
	return nodes, nil
}

// AllEdges returns every edge in the storage.
func (m *MemoryEngine) AllEdges() ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edges := make([]*Edge, 0, len(m.edges))
	for _, edge := range m.edges {
		edges = append(edges, CopyEdge(edge))
	}
	return edges, nil
}

// DeleteByPrefix removes all nodes and edges whose id starts with prefix.
// Edges go first so no edge is ever left dangling mid-delete.
func (m *MemoryEngine) DeleteByPrefix(prefix string) (int64, int64, error) {
	if prefix == "" {
		return 0, 0, ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, 0, ErrStorageClosed
	}

	var edgesDeleted int64
	for id := range m.edges {
		if strings.HasPrefix(string(id), prefix) {
			m.detachEdge(id)
			edgesDeleted++
		}
	}

	var nodesDeleted int64
	for id := range m.nodes {
		if strings.HasPrefix(string(id), prefix) {
			delete(m.outgoing, id)
			delete(m.incoming, id)
			delete(m.nodes, id)
			nodesDeleted++
		}
	}

	return nodesDeleted, edgesDeleted, nil
}

// NodeCount returns the number of nodes.
func (m *MemoryEngine) NodeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.nodes)), nil
}

// EdgeCount returns the number of edges.
func (m *MemoryEngine) EdgeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.edges)), nil
}

// Close closes the storage engine.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.nodes = nil
	m.edges = nil
	m.outgoing = nil
	m.incoming = nil
	return nil
}

// Verify MemoryEngine implements Engine
var _ Engine = (*MemoryEngine)(nil)
