// Package storage provides graph storage for the retrieval engine.
//
// The storage model is a property graph: nodes carry labels and a free-form
// property bag, edges connect two nodes with a type and their own property
// bag. One physical Engine is shared by every tenant in the process; the
// NamespacedGraph adapter partitions it logically (see namespaced.go).
//
// Two Engine implementations ship with the package:
//   - MemoryEngine: in-memory, for tests and ephemeral deployments
//   - BadgerEngine: persistent, backed by BadgerDB
package storage

import "time"

// NodeID identifies a node in the physical engine. In a multi-tenant
// deployment the id already carries the tenant namespace prefix
// ("user_alice_:Gothmog"); the NamespacedGraph adapter applies and strips
// that prefix so callers only ever see bare entity ids.
type NodeID string

// EdgeID identifies an edge in the physical engine.
type EdgeID string

// Node is a labeled property-graph node.
type Node struct {
	ID         NodeID         `json:"id"`
	Labels     []string       `json:"labels,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// Edge is a directed, typed property-graph edge.
type Edge struct {
	ID         EdgeID         `json:"id"`
	Type       string         `json:"type"`
	StartNode  NodeID         `json:"start_node"`
	EndNode    NodeID         `json:"end_node"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// CopyNode returns a deep copy of n.
func CopyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.Labels != nil {
		out.Labels = make([]string, len(n.Labels))
		copy(out.Labels, n.Labels)
	}
	if n.Properties != nil {
		out.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// CopyEdge returns a deep copy of e.
func CopyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	out := &Edge{
		ID:        e.ID,
		Type:      e.Type,
		StartNode: e.StartNode,
		EndNode:   e.EndNode,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Properties != nil {
		out.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// Engine is the physical graph storage shared by all tenants.
//
// Put operations are upserts: writing an existing id replaces the record.
// PutEdge requires both endpoint nodes to exist. DeleteNode removes the
// node's edges along with the node.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	PutNode(node *Node) error
	GetNode(id NodeID) (*Node, error)
	DeleteNode(id NodeID) error

	PutEdge(edge *Edge) error
	GetEdge(id EdgeID) (*Edge, error)
	DeleteEdge(id EdgeID) error

	GetOutgoingEdges(id NodeID) ([]*Edge, error)
	GetIncomingEdges(id NodeID) ([]*Edge, error)

	AllNodes() ([]*Node, error)
	AllEdges() ([]*Edge, error)

	// DeleteByPrefix removes every node and edge whose id starts with
	// prefix. Edges are deleted before nodes. Used to drop a whole
	// namespace in one pass.
	DeleteByPrefix(prefix string) (nodesDeleted, edgesDeleted int64, err error)

	NodeCount() (int64, error)
	EdgeCount() (int64, error)

	Close() error
}
