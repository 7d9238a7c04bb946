// BadgerEngine is the persistent Engine implementation backed by BadgerDB.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Key layout inside BadgerDB. Adjacency entries are value-less index keys;
// the 0x00 separator cannot appear in node or edge ids (they are derived
// from namespace strings and entity names, both plain text).
const (
	nodeKeyPrefix = "n:"
	edgeKeyPrefix = "e:"
	outKeyPrefix  = "o:"
	inKeyPrefix   = "i:"
	keySep        = "\x00"
)

// BadgerEngine stores the property graph in a single BadgerDB instance.
// One BadgerEngine is shared by every tenant namespace in the process;
// isolation happens above it via id prefixes (see NamespacedGraph).
//
// Thread-safe: BadgerDB transactions provide the concurrency guarantees.
type BadgerEngine struct {
	db       *badger.DB
	inMemory bool
}

// BadgerOptions configures a BadgerEngine.
type BadgerOptions struct {
	// DataDir is the storage directory (ignored when InMemory is set).
	DataDir string

	// InMemory keeps all data in RAM. Useful for tests.
	InMemory bool

	// SyncWrites forces an fsync after each write. Slower but safest.
	SyncWrites bool
}

// NewBadgerEngine opens (or creates) a persistent graph store at dataDir.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineWithOptions opens a BadgerEngine with custom configuration.
// Open failures surface as ErrStorageUnavailable so callers can tell a
// missing backend apart from bad input.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger at %s: %v", ErrStorageUnavailable, opts.DataDir, err)
	}

	return &BadgerEngine{db: db, inMemory: opts.InMemory}, nil
}

func nodeKey(id NodeID) []byte { return []byte(nodeKeyPrefix + string(id)) }
func edgeKey(id EdgeID) []byte { return []byte(edgeKeyPrefix + string(id)) }

func outKey(start NodeID, edge EdgeID) []byte {
	return []byte(outKeyPrefix + string(start) + keySep + string(edge))
}

func inKey(end NodeID, edge EdgeID) []byte {
	return []byte(inKeyPrefix + string(end) + keySep + string(edge))
}

// mapBadgerErr translates BadgerDB errors into the package sentinels.
func mapBadgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return ErrStorageClosed
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

// PutNode creates or replaces a node.
func (b *BadgerEngine) PutNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	return mapBadgerErr(b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(node.ID), data)
	}))
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var node Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return &node, nil
}

// DeleteNode removes a node and every edge attached to it.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	return mapBadgerErr(b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(id)); err != nil {
			return err
		}

		for _, prefix := range []string{
			outKeyPrefix + string(id) + keySep,
			inKeyPrefix + string(id) + keySep,
		} {
			edgeIDs, err := scanAdjacency(txn, prefix)
			if err != nil {
				return err
			}
			for _, edgeID := range edgeIDs {
				if err := deleteEdgeInTxn(txn, edgeID); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
		}

		return txn.Delete(nodeKey(id))
	}))
}

// PutEdge creates or replaces an edge. Both endpoints must exist.
func (b *BadgerEngine) PutEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	return mapBadgerErr(b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(edge.StartNode)); err != nil {
			return err
		}
		if _, err := txn.Get(nodeKey(edge.EndNode)); err != nil {
			return err
		}

		// A replaced edge may have moved endpoints; clear stale index keys.
		if old, err := getEdgeInTxn(txn, edge.ID); err == nil {
			if err := txn.Delete(outKey(old.StartNode, old.ID)); err != nil {
				return err
			}
			if err := txn.Delete(inKey(old.EndNode, old.ID)); err != nil {
				return err
			}
		}

		if err := txn.Set(edgeKey(edge.ID), data); err != nil {
			return err
		}
		if err := txn.Set(outKey(edge.StartNode, edge.ID), nil); err != nil {
			return err
		}
		return txn.Set(inKey(edge.EndNode, edge.ID), nil)
	}))
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		edge, err = getEdgeInTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return edge, nil
}

// DeleteEdge removes an edge.
func (b *BadgerEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}

	return mapBadgerErr(b.db.Update(func(txn *badger.Txn) error {
		return deleteEdgeInTxn(txn, id)
	}))
}

// GetOutgoingEdges returns all edges starting from the given node.
func (b *BadgerEngine) GetOutgoingEdges(id NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(id, outKeyPrefix)
}

// GetIncomingEdges returns all edges ending at the given node.
func (b *BadgerEngine) GetIncomingEdges(id NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(id, inKeyPrefix)
}

func (b *BadgerEngine) edgesByAdjacency(id NodeID, indexPrefix string) ([]*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	edges := []*Edge{}
	err := b.db.View(func(txn *badger.Txn) error {
		edgeIDs, err := scanAdjacency(txn, indexPrefix+string(id)+keySep)
		if err != nil {
			return err
		}
		for _, edgeID := range edgeIDs {
			edge, err := getEdgeInTxn(txn, edgeID)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // stale index entry
			}
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return edges, nil
}

// AllNodes returns every node in the storage.
func (b *BadgerEngine) AllNodes() ([]*Node, error) {
	nodes := []*Node{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(nodeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var node Node
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &node)
			})
			if err != nil {
				return err
			}
			nodes = append(nodes, &node)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return nodes, nil
}

// AllEdges returns every edge in the storage.
func (b *BadgerEngine) AllEdges() ([]*Edge, error) {
	edges := []*Edge{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(edgeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var edge Edge
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			})
			if err != nil {
				return err
			}
			edges = append(edges, &edge)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return edges, nil
}

// DeleteByPrefix removes every node and edge whose id starts with prefix.
// Edges and their adjacency index entries go first, then nodes, so a crash
// mid-delete never leaves an edge without its endpoints.
func (b *BadgerEngine) DeleteByPrefix(prefix string) (int64, int64, error) {
	if prefix == "" {
		return 0, 0, ErrInvalidID
	}

	var nodesDeleted, edgesDeleted int64

	// Collect ids under a read transaction, delete via a write batch:
	// a namespace drop may exceed a single transaction's size limits.
	var edgeIDs []EdgeID
	var nodeIDs []NodeID
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		if edgeIDs, err = collectIDs[EdgeID](txn, edgeKeyPrefix+prefix); err != nil {
			return err
		}
		nodeIDs, err = collectIDs[NodeID](txn, nodeKeyPrefix+prefix)
		return err
	})
	if err != nil {
		return 0, 0, mapBadgerErr(err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range edgeIDs {
		edge, err := b.GetEdge(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nodesDeleted, edgesDeleted, err
		}
		if err := wb.Delete(outKey(edge.StartNode, edge.ID)); err != nil {
			return nodesDeleted, edgesDeleted, mapBadgerErr(err)
		}
		if err := wb.Delete(inKey(edge.EndNode, edge.ID)); err != nil {
			return nodesDeleted, edgesDeleted, mapBadgerErr(err)
		}
		if err := wb.Delete(edgeKey(id)); err != nil {
			return nodesDeleted, edgesDeleted, mapBadgerErr(err)
		}
		edgesDeleted++
	}
	for _, id := range nodeIDs {
		if err := wb.Delete(nodeKey(id)); err != nil {
			return nodesDeleted, edgesDeleted, mapBadgerErr(err)
		}
		nodesDeleted++
	}

	if err := wb.Flush(); err != nil {
		return 0, 0, mapBadgerErr(err)
	}
	return nodesDeleted, edgesDeleted, nil
}

// NodeCount returns the number of nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	return b.countByPrefix(nodeKeyPrefix)
}

// EdgeCount returns the number of edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	return b.countByPrefix(edgeKeyPrefix)
}

func (b *BadgerEngine) countByPrefix(prefix string) (int64, error) {
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, mapBadgerErr(err)
	}
	return count, nil
}

// Close closes the underlying BadgerDB.
func (b *BadgerEngine) Close() error {
	return mapBadgerErr(b.db.Close())
}

// scanAdjacency returns the edge ids recorded under an adjacency prefix.
func scanAdjacency(txn *badger.Txn, prefix string) ([]EdgeID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var edgeIDs []EdgeID
	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		edgeIDs = append(edgeIDs, EdgeID(key[len(prefix):]))
	}
	return edgeIDs, nil
}

// collectIDs gathers record ids under a key prefix, stripping the key-space
// marker ("n:" or "e:").
func collectIDs[T ~string](txn *badger.Txn, fullPrefix string) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(fullPrefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	marker := fullPrefix[:strings.Index(fullPrefix, ":")+1]
	var ids []T
	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		ids = append(ids, T(key[len(marker):]))
	}
	return ids, nil
}

func getEdgeInTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if err != nil {
		return nil, err
	}
	var edge Edge
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &edge)
	}); err != nil {
		return nil, err
	}
	return &edge, nil
}

func deleteEdgeInTxn(txn *badger.Txn, id EdgeID) error {
	edge, err := getEdgeInTxn(txn, id)
	if err != nil {
		return err
	}
	if err := txn.Delete(outKey(edge.StartNode, edge.ID)); err != nil {
		return err
	}
	if err := txn.Delete(inKey(edge.EndNode, edge.ID)); err != nil {
		return err
	}
	return txn.Delete(edgeKey(id))
}

// Verify BadgerEngine implements Engine
var _ Engine = (*BadgerEngine)(nil)
