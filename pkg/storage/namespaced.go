// NamespacedGraph wraps a shared Engine with tenant namespace isolation.
//
// Key design:
//   - Record ids are prefixed with the namespace plus a ":" separator:
//     "user_alice_:Gothmog" instead of "Gothmog". The separator sits
//     outside the tenant id charset, so no namespace's key prefix is a
//     prefix of another's ("user_alice_:" never matches keys of
//     "user_alice_bob_") and distinct (tenant, entity) pairs never map
//     to the same key.
//   - Every written node and edge additionally carries the namespace in its
//     labels/type and a "namespace" property, stamped in the same write.
//     A record can never exist without its namespace tag.
//   - Reads verify the namespace property as well as the id prefix; an id
//     match alone is never sufficient to cross a tenant boundary.
//   - Drop removes only this namespace's records, relationships before
//     nodes.
//
// The adapter holds no mutable state beyond its fixed namespace string, so
// one instance may be shared freely by concurrent requests of the same
// tenant.
//
// Example:
//
//	inner, _ := storage.NewBadgerEngine("./data")
//	alice := storage.NewNamespacedGraph(inner, "user_alice_")
//	bob := storage.NewNamespacedGraph(inner, "user_bob_")
//
//	alice.UpsertNode("Gothmog", map[string]any{"kind": "balrog"})
//	ok, _ := bob.HasNode("Gothmog") // false
package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Default base label and relationship type. The effective label/type
// stored in the engine is the namespaced form ("user_alice_Entity").
const (
	BaseNodeLabel = "Entity"
	BaseEdgeType  = "RELATED_TO"
)

// propNamespace is the property stamped on every record so rows remain
// filterable even within a shared key space.
const propNamespace = "namespace"

// propEntityID carries the caller-visible entity id on stored nodes.
const propEntityID = "entity_id"

// edgeIDSep joins source and target entity ids into a storage edge id.
// U+001F cannot appear in entity names extracted from document text.
const edgeIDSep = "\x1f"

// nsKeySep separates the namespace from the entity id in storage keys.
// It is outside the tenant id charset ([A-Za-z0-9_]), which keeps key
// prefixes of distinct namespaces prefix-free even when one tenant id is
// a prefix of another ("alice" vs "alice_bob").
const nsKeySep = ":"

// DropResult reports the outcome of Drop. Drop never panics and never
// returns a Go error; callers must check Status.
type DropResult struct {
	Status  string `json:"status"` // "success" or "error"
	Message string `json:"message"`
}

// NamespacedGraph is the tenant-scoped view over a shared Engine.
type NamespacedGraph struct {
	inner     Engine
	namespace string
}

// NewNamespacedGraph creates a tenant-scoped graph view. The namespace must
// come from the namespace codec, never from raw user input: it is
// interpolated into record ids and labels.
func NewNamespacedGraph(inner Engine, ns string) *NamespacedGraph {
	return &NamespacedGraph{inner: inner, namespace: ns}
}

// Namespace returns the namespace this view is bound to.
func (g *NamespacedGraph) Namespace() string {
	return g.namespace
}

// keyPrefix is the storage key prefix owned exclusively by this
// namespace. Every record id of this namespace starts with it and no
// record id of any other namespace does.
func (g *NamespacedGraph) keyPrefix() string {
	return g.namespace + nsKeySep
}

func (g *NamespacedGraph) nodeID(entityID string) NodeID {
	return NodeID(g.keyPrefix() + entityID)
}

func (g *NamespacedGraph) edgeID(sourceID, targetID string) EdgeID {
	return EdgeID(g.keyPrefix() + sourceID + edgeIDSep + targetID)
}

func (g *NamespacedGraph) nodeLabel() string {
	return g.namespace + BaseNodeLabel
}

func (g *NamespacedGraph) edgeType() string {
	return g.namespace + BaseEdgeType
}

// owns reports whether a stored record belongs to this namespace. Both the
// id prefix and the stamped namespace property must agree.
func (g *NamespacedGraph) ownsNode(n *Node) bool {
	if n == nil || !strings.HasPrefix(string(n.ID), g.keyPrefix()) {
		return false
	}
	ns, _ := n.Properties[propNamespace].(string)
	return ns == g.namespace
}

func (g *NamespacedGraph) ownsEdge(e *Edge) bool {
	if e == nil || !strings.HasPrefix(string(e.ID), g.keyPrefix()) {
		return false
	}
	ns, _ := e.Properties[propNamespace].(string)
	return ns == g.namespace
}

// HasNode reports whether an entity exists in this namespace.
func (g *NamespacedGraph) HasNode(entityID string) (bool, error) {
	node, err := g.inner.GetNode(g.nodeID(entityID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.ownsNode(node), nil
}

// HasEdge reports whether an edge exists between two entities in this
// namespace.
func (g *NamespacedGraph) HasEdge(sourceID, targetID string) (bool, error) {
	edge, err := g.inner.GetEdge(g.edgeID(sourceID, targetID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.ownsEdge(edge), nil
}

// NodeDegree returns the number of edges attached to an entity within this
// namespace. Returns 0 for an absent node, matching the query semantics of
// a count over an empty match.
func (g *NamespacedGraph) NodeDegree(entityID string) (int, error) {
	id := g.nodeID(entityID)

	out, err := g.inner.GetOutgoingEdges(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	in, err := g.inner.GetIncomingEdges(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	degree := 0
	for _, e := range out {
		if g.ownsEdge(e) {
			degree++
		}
	}
	for _, e := range in {
		if g.ownsEdge(e) {
			degree++
		}
	}
	return degree, nil
}

// EdgeDegree returns the combined degree of an edge's two endpoints.
func (g *NamespacedGraph) EdgeDegree(sourceID, targetID string) (int, error) {
	src, err := g.NodeDegree(sourceID)
	if err != nil {
		return 0, err
	}
	tgt, err := g.NodeDegree(targetID)
	if err != nil {
		return 0, err
	}
	return src + tgt, nil
}

// GetNode returns an entity's properties, or ErrNotFound. The internal
// namespace stamp is stripped from the returned bag.
func (g *NamespacedGraph) GetNode(entityID string) (map[string]any, error) {
	node, err := g.inner.GetNode(g.nodeID(entityID))
	if err != nil {
		return nil, err
	}
	if !g.ownsNode(node) {
		return nil, ErrNotFound
	}
	return stripInternal(node.Properties), nil
}

// GetEdge returns the properties of the edge between two entities, or
// ErrNotFound.
func (g *NamespacedGraph) GetEdge(sourceID, targetID string) (map[string]any, error) {
	edge, err := g.inner.GetEdge(g.edgeID(sourceID, targetID))
	if err != nil {
		return nil, err
	}
	if !g.ownsEdge(edge) {
		return nil, ErrNotFound
	}
	return stripInternal(edge.Properties), nil
}

// EdgeEndpoints is a (source, target) entity id pair.
type EdgeEndpoints struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// GetNodeEdges returns the endpoint pairs of every edge touching the given
// entity, outgoing first. Returns ErrNotFound if the entity is absent.
func (g *NamespacedGraph) GetNodeEdges(entityID string) ([]EdgeEndpoints, error) {
	exists, err := g.HasNode(entityID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	id := g.nodeID(entityID)
	out, err := g.inner.GetOutgoingEdges(id)
	if err != nil {
		return nil, err
	}
	in, err := g.inner.GetIncomingEdges(id)
	if err != nil {
		return nil, err
	}

	pairs := make([]EdgeEndpoints, 0, len(out)+len(in))
	for _, e := range append(out, in...) {
		if !g.ownsEdge(e) {
			continue
		}
		pairs = append(pairs, EdgeEndpoints{
			Source: g.unprefix(e.StartNode),
			Target: g.unprefix(e.EndNode),
		})
	}
	return pairs, nil
}

func (g *NamespacedGraph) unprefix(id NodeID) string {
	return strings.TrimPrefix(string(id), g.keyPrefix())
}

// UpsertNode inserts or updates an entity. The namespace tag is part of the
// same write, so the record can never exist untagged.
func (g *NamespacedGraph) UpsertNode(entityID string, props map[string]any) error {
	if entityID == "" {
		return ErrInvalidID
	}

	stamped := make(map[string]any, len(props)+2)
	for k, v := range props {
		stamped[k] = v
	}
	stamped[propNamespace] = g.namespace
	stamped[propEntityID] = entityID

	return g.inner.PutNode(&Node{
		ID:         g.nodeID(entityID),
		Labels:     []string{g.nodeLabel()},
		Properties: stamped,
	})
}

// UpsertEdge inserts or updates the edge between two entities. Both
// endpoints must already exist in this namespace.
func (g *NamespacedGraph) UpsertEdge(sourceID, targetID string, props map[string]any) error {
	if sourceID == "" || targetID == "" {
		return ErrInvalidID
	}

	stamped := make(map[string]any, len(props)+1)
	for k, v := range props {
		stamped[k] = v
	}
	stamped[propNamespace] = g.namespace

	return g.inner.PutEdge(&Edge{
		ID:         g.edgeID(sourceID, targetID),
		Type:       g.edgeType(),
		StartNode:  g.nodeID(sourceID),
		EndNode:    g.nodeID(targetID),
		Properties: stamped,
	})
}

// DeleteNode removes an entity and its edges. Deleting an absent entity is
// a no-op.
func (g *NamespacedGraph) DeleteNode(entityID string) error {
	exists, err := g.HasNode(entityID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	err = g.inner.DeleteNode(g.nodeID(entityID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RemoveNodes deletes multiple entities.
func (g *NamespacedGraph) RemoveNodes(entityIDs []string) error {
	for _, id := range entityIDs {
		if err := g.DeleteNode(id); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEdges deletes multiple edges given as (source, target) pairs.
// Absent edges are skipped.
func (g *NamespacedGraph) RemoveEdges(pairs []EdgeEndpoints) error {
	for _, p := range pairs {
		err := g.inner.DeleteEdge(g.edgeID(p.Source, p.Target))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// GetAllLabels returns the sorted entity ids present in this namespace.
func (g *NamespacedGraph) GetAllLabels() ([]string, error) {
	nodes, err := g.inner.AllNodes()
	if err != nil {
		return nil, err
	}

	labels := []string{}
	for _, n := range nodes {
		if g.ownsNode(n) {
			labels = append(labels, g.unprefix(n.ID))
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Drop deletes every record in this namespace, relationships before nodes.
// Other namespaces are untouched. Failures are reported in the result, not
// raised; callers must check Status.
func (g *NamespacedGraph) Drop() DropResult {
	nodesDeleted, edgesDeleted, err := g.inner.DeleteByPrefix(g.keyPrefix())
	if err != nil {
		return DropResult{Status: "error", Message: err.Error()}
	}
	return DropResult{
		Status:  "success",
		Message: fmt.Sprintf("%d nodes, %d relationships dropped", nodesDeleted, edgesDeleted),
	}
}

// stripInternal removes the namespace stamp from a property bag copy.
func stripInternal(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == propNamespace {
			continue
		}
		out[k] = v
	}
	return out
}
