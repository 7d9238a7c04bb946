package storage

import (
	"sort"
	"strings"
)

// KnowledgeGraphNode is a node in a retrieved subgraph, keyed by the
// caller-visible entity id.
type KnowledgeGraphNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// KnowledgeGraphEdge is an edge in a retrieved subgraph.
type KnowledgeGraphEdge struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Properties map[string]any `json:"properties"`
}

// KnowledgeGraph is a bounded subgraph. IsTruncated is set when the
// traversal found more reachable nodes than it was allowed to return.
type KnowledgeGraph struct {
	Nodes       []KnowledgeGraphNode `json:"nodes"`
	Edges       []KnowledgeGraphEdge `json:"edges"`
	IsTruncated bool                 `json:"is_truncated"`
}

// LabelWildcard matches every node in the namespace.
const LabelWildcard = "*"

// GetKnowledgeGraph retrieves a bounded subgraph of this namespace.
//
// Starting nodes are those whose entity id contains labelFilter (all
// namespace nodes when labelFilter is "*"). The traversal expands breadth
// first up to maxDepth hops and admits at most maxNodes nodes.
//
// Truncation policy, deterministic by construction:
//  1. Nodes reached in fewer hops are admitted before nodes reached in
//     more hops; a depth-d node is never displaced by a depth-d+1 node.
//  2. Within one depth, higher-degree nodes win; ties break on entity id.
//
// When the bound cuts off reachable nodes, IsTruncated is true and the
// result is returned rather than an error. Returned edges are exactly
// those with both endpoints admitted.
func (g *NamespacedGraph) GetKnowledgeGraph(labelFilter string, maxDepth, maxNodes int) (*KnowledgeGraph, error) {
	if maxDepth < 1 || maxNodes < 1 {
		return nil, ErrInvalidData
	}

	allNodes, err := g.inner.AllNodes()
	if err != nil {
		return nil, err
	}
	allEdges, err := g.inner.AllEdges()
	if err != nil {
		return nil, err
	}

	// Restrict to this namespace and index by entity id.
	nodesByID := make(map[string]*Node)
	for _, n := range allNodes {
		if g.ownsNode(n) {
			nodesByID[g.unprefix(n.ID)] = n
		}
	}

	type adjEdge struct {
		edge     *Edge
		neighbor string
	}
	adjacency := make(map[string][]adjEdge)
	degree := make(map[string]int)
	var nsEdges []*Edge
	for _, e := range allEdges {
		if !g.ownsEdge(e) {
			continue
		}
		src := g.unprefix(e.StartNode)
		tgt := g.unprefix(e.EndNode)
		adjacency[src] = append(adjacency[src], adjEdge{edge: e, neighbor: tgt})
		adjacency[tgt] = append(adjacency[tgt], adjEdge{edge: e, neighbor: src})
		degree[src]++
		degree[tgt]++
		nsEdges = append(nsEdges, e)
	}

	// Seed set.
	var frontier []string
	for id := range nodesByID {
		if labelFilter == LabelWildcard || strings.Contains(id, labelFilter) {
			frontier = append(frontier, id)
		}
	}

	byPriority := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			if degree[ids[i]] != degree[ids[j]] {
				return degree[ids[i]] > degree[ids[j]]
			}
			return ids[i] < ids[j]
		})
	}

	admitted := make(map[string]struct{})
	var order []string
	truncated := false

	visited := make(map[string]struct{})
	for _, id := range frontier {
		visited[id] = struct{}{}
	}

	// Depth 0 is the seed set itself; each iteration admits one depth
	// level, fully ordered, before looking any deeper.
	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		byPriority(frontier)

		for _, id := range frontier {
			if len(admitted) >= maxNodes {
				truncated = true
				break
			}
			admitted[id] = struct{}{}
			order = append(order, id)
		}
		if truncated {
			break
		}
		if depth == maxDepth {
			break
		}

		var next []string
		for _, id := range frontier {
			for _, a := range adjacency[id] {
				if _, seen := visited[a.neighbor]; seen {
					continue
				}
				if _, ok := nodesByID[a.neighbor]; !ok {
					continue // dangling reference
				}
				visited[a.neighbor] = struct{}{}
				next = append(next, a.neighbor)
			}
		}
		frontier = next
	}

	kg := &KnowledgeGraph{
		Nodes:       make([]KnowledgeGraphNode, 0, len(order)),
		Edges:       []KnowledgeGraphEdge{},
		IsTruncated: truncated,
	}
	for _, id := range order {
		kg.Nodes = append(kg.Nodes, KnowledgeGraphNode{
			ID:         id,
			Labels:     []string{BaseNodeLabel},
			Properties: stripInternal(nodesByID[id].Properties),
		})
	}
	for _, e := range nsEdges {
		src := g.unprefix(e.StartNode)
		tgt := g.unprefix(e.EndNode)
		if _, ok := admitted[src]; !ok {
			continue
		}
		if _, ok := admitted[tgt]; !ok {
			continue
		}
		kg.Edges = append(kg.Edges, KnowledgeGraphEdge{
			ID:         src + "_" + tgt,
			Type:       BaseEdgeType,
			Source:     src,
			Target:     tgt,
			Properties: stripInternal(e.Properties),
		})
	}
	return kg, nil
}
