package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/meshfirm/lightrag/pkg/kv"
	"github.com/meshfirm/lightrag/pkg/llm"
	"github.com/meshfirm/lightrag/pkg/namespace"
	"github.com/meshfirm/lightrag/pkg/storage"
	"github.com/meshfirm/lightrag/pkg/vector"
)

// Config is the base configuration shared across all tenants. Per-tenant
// state (namespace, working directory, store handles) is derived from it at
// instance construction.
type Config struct {
	// BasePath is the root under which per-tenant working directories are
	// created.
	BasePath string

	// Graph is the shared graph engine partitioned per tenant by the
	// namespaced adapter.
	Graph storage.Engine

	// Embedding and Model are the retrieval engine's callables. Embedding
	// is required; Model may be nil (queries then return raw context).
	Embedding llm.EmbeddingFunc
	Model     llm.ModelFunc

	// InMemoryStores swaps the per-tenant KV and vector stores for
	// volatile ones. For tests.
	InMemoryStores bool
}

func (c *Config) validate() error {
	if c.Graph == nil {
		return fmt.Errorf("graph engine is required")
	}
	if c.Embedding == nil {
		return fmt.Errorf("embedding function is required")
	}
	if !c.InMemoryStores && c.BasePath == "" {
		return fmt.Errorf("base path is required")
	}
	return nil
}

// PipelineStatus summarizes a tenant's ingestion activity.
type PipelineStatus struct {
	Busy          bool  `json:"busy"`
	DocsProcessed int64 `json:"docs_processed"`
}

// TenantEngine binds one retrieval engine to one tenant's namespace and
// working directory and owns that tenant's storage lifecycle. Instances are
// created and initialized by the Manager; callers receive them already
// initialized.
type TenantEngine struct {
	tenantID   string
	namespace  string
	workingDir string
	graph      *storage.NamespacedGraph
	embed      llm.EmbeddingFunc
	model      llm.ModelFunc
	inMemory   bool

	mu          sync.Mutex
	initialized bool
	chunks      *kv.Store
	vectors     *vector.Store
	retriever   *Retriever

	inflight      atomic.Int64
	docsProcessed atomic.Int64
	finalizeCalls atomic.Int64
}

// NewTenantEngine constructs an instance for tenantID against the shared
// configuration. It validates the tenant id, derives the namespace and
// working directory, and creates the directory. Storages are opened by
// InitializeStorages, not here.
func NewTenantEngine(tenantID string, cfg Config) (*TenantEngine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ns, err := namespace.Derive(tenantID)
	if err != nil {
		return nil, err
	}
	workingDir, err := namespace.WorkingDir(tenantID, cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !cfg.InMemoryStores {
		if err := os.MkdirAll(workingDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating working directory %s: %w", workingDir, err)
		}
	}
	return &TenantEngine{
		tenantID:   tenantID,
		namespace:  ns,
		workingDir: workingDir,
		graph:      storage.NewNamespacedGraph(cfg.Graph, ns),
		embed:      cfg.Embedding,
		model:      cfg.Model,
		inMemory:   cfg.InMemoryStores,
	}, nil
}

// TenantID returns the owning tenant's id.
func (e *TenantEngine) TenantID() string { return e.tenantID }

// Namespace returns the derived namespace string.
func (e *TenantEngine) Namespace() string { return e.namespace }

// WorkingDir returns the tenant's exclusive working directory.
func (e *TenantEngine) WorkingDir() string { return e.workingDir }

// InitializeStorages opens the tenant's KV and vector stores. Idempotent:
// initializing an already-initialized instance is a no-op.
func (e *TenantEngine) InitializeStorages() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}

	var err error
	if e.inMemory {
		e.chunks, err = kv.OpenInMemory()
	} else {
		e.chunks, err = kv.Open(filepath.Join(e.workingDir, "kv"))
	}
	if err != nil {
		e.releaseLocked()
		return fmt.Errorf("initializing kv store for %s: %w", e.tenantID, err)
	}

	if e.inMemory {
		e.vectors, err = vector.OpenInMemory(e.namespace, vector.EmbeddingFunc(e.embed))
	} else {
		e.vectors, err = vector.Open(filepath.Join(e.workingDir, "vectors"), e.namespace, vector.EmbeddingFunc(e.embed))
	}
	if err != nil {
		e.releaseLocked()
		return fmt.Errorf("initializing vector store for %s: %w", e.tenantID, err)
	}

	e.retriever = NewRetriever(e.chunks, e.vectors, e.graph, e.embed, e.model)
	e.initialized = true
	return nil
}

// FinalizeStorages releases the tenant's storage handles. Safe to call on a
// partially initialized instance and idempotent: a second call is a no-op.
func (e *TenantEngine) FinalizeStorages() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized && e.chunks == nil && e.vectors == nil {
		return nil
	}
	e.finalizeCalls.Add(1)
	e.releaseLocked()
	return nil
}

// releaseLocked closes whatever handles exist. Callers hold e.mu.
func (e *TenantEngine) releaseLocked() {
	if e.chunks != nil {
		_ = e.chunks.Close()
		e.chunks = nil
	}
	if e.vectors != nil {
		_ = e.vectors.Close()
		e.vectors = nil
	}
	e.retriever = nil
	e.initialized = false
}

// ready returns the retriever, or ErrNotInitialized.
func (e *TenantEngine) ready() (*Retriever, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, fmt.Errorf("tenant %s: %w", e.tenantID, ErrNotInitialized)
	}
	return e.retriever, nil
}

// Insert ingests one document, tagging any caller-supplied file path with
// the tenant namespace so provenance metadata never leaks across tenants.
func (e *TenantEngine) Insert(ctx context.Context, req InsertRequest) (*InsertResult, error) {
	r, err := e.ready()
	if err != nil {
		return nil, err
	}
	if req.FilePath != "" && !strings.HasPrefix(req.FilePath, e.namespace) {
		req.FilePath = e.namespace + req.FilePath
	}

	e.inflight.Add(1)
	defer e.inflight.Add(-1)

	result, err := r.Insert(ctx, req)
	if err != nil {
		return nil, err
	}
	e.docsProcessed.Add(1)
	return result, nil
}

// Query answers a question strictly from this tenant's stores.
func (e *TenantEngine) Query(ctx context.Context, query string, params QueryParams, systemPrompt string) (string, error) {
	r, err := e.ready()
	if err != nil {
		return "", err
	}
	return r.Query(ctx, query, params, systemPrompt)
}

// ProcessingStatus reports ingestion activity.
func (e *TenantEngine) ProcessingStatus() PipelineStatus {
	return PipelineStatus{
		Busy:          e.inflight.Load() > 0,
		DocsProcessed: e.docsProcessed.Load(),
	}
}

// GraphLabels lists the tenant's entity ids.
func (e *TenantEngine) GraphLabels() ([]string, error) {
	if _, err := e.ready(); err != nil {
		return nil, err
	}
	return e.graph.GetAllLabels()
}

// EntityExists reports whether the named entity exists in this tenant's
// graph.
func (e *TenantEngine) EntityExists(name string) (bool, error) {
	if _, err := e.ready(); err != nil {
		return false, err
	}
	return e.graph.HasNode(name)
}

// KnowledgeGraph returns the bounded subgraph around entities matching
// labelFilter.
func (e *TenantEngine) KnowledgeGraph(labelFilter string, maxDepth, maxNodes int) (*storage.KnowledgeGraph, error) {
	if _, err := e.ready(); err != nil {
		return nil, err
	}
	return e.graph.GetKnowledgeGraph(labelFilter, maxDepth, maxNodes)
}

// EditEntity merges updated properties onto an existing entity. When
// updated contains "entity_name" and allowRename is set, the entity is
// renamed; the new name must not already exist. Returns the entity's
// resulting properties.
func (e *TenantEngine) EditEntity(name string, updated map[string]any, allowRename bool) (map[string]any, error) {
	if _, err := e.ready(); err != nil {
		return nil, err
	}
	props, err := e.graph.GetNode(name)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", name, err)
	}

	newName := name
	if raw, ok := updated["entity_name"]; ok {
		candidate, isString := raw.(string)
		if !isString || candidate == "" {
			return nil, fmt.Errorf("%w: entity_name must be a non-empty string", ErrValidation)
		}
		if candidate != name {
			if !allowRename {
				return nil, fmt.Errorf("%w: renaming requires allow_rename", ErrValidation)
			}
			exists, err := e.graph.HasNode(candidate)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, fmt.Errorf("%w: entity %s already exists", ErrValidation, candidate)
			}
			newName = candidate
		}
	}

	for key, value := range updated {
		if key == "entity_name" {
			continue
		}
		props[key] = value
	}
	delete(props, "entity_id")

	if newName == name {
		if err := e.graph.UpsertNode(name, props); err != nil {
			return nil, err
		}
		props["entity_id"] = name
		return props, nil
	}

	// Rename: write the new node, re-point every edge, then drop the old
	// node.
	if err := e.graph.UpsertNode(newName, props); err != nil {
		return nil, err
	}
	edges, err := e.graph.GetNodeEdges(name)
	if err != nil {
		return nil, err
	}
	for _, edge := range edges {
		edgeProps, err := e.graph.GetEdge(edge.Source, edge.Target)
		if err != nil {
			return nil, err
		}
		source, target := edge.Source, edge.Target
		if source == name {
			source = newName
		}
		if target == name {
			target = newName
		}
		if err := e.graph.UpsertEdge(source, target, edgeProps); err != nil {
			return nil, err
		}
	}
	if err := e.graph.DeleteNode(name); err != nil {
		return nil, err
	}
	props["entity_id"] = newName
	return props, nil
}

// EditRelation merges updated properties onto the relation between source
// and target. Both endpoints and the relation must exist.
func (e *TenantEngine) EditRelation(source, target string, updated map[string]any) (map[string]any, error) {
	if _, err := e.ready(); err != nil {
		return nil, err
	}
	props, err := e.graph.GetEdge(source, target)
	if err != nil {
		return nil, fmt.Errorf("relation %s -> %s: %w", source, target, err)
	}
	for key, value := range updated {
		props[key] = value
	}
	if err := e.graph.UpsertEdge(source, target, props); err != nil {
		return nil, err
	}
	return props, nil
}

// DeleteAllData drops every record in the tenant's namespace: graph data
// (relationships before nodes), chunk/status KV records, and the vector
// collection. Storages stay initialized and usable afterwards.
func (e *TenantEngine) DeleteAllData() (storage.DropResult, error) {
	if _, err := e.ready(); err != nil {
		return storage.DropResult{}, err
	}
	result := e.graph.Drop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chunks != nil {
		if err := e.chunks.DropAll(); err != nil {
			return result, fmt.Errorf("dropping kv data for %s: %w", e.tenantID, err)
		}
	}
	if e.vectors != nil {
		if err := e.vectors.Drop(vector.EmbeddingFunc(e.embed)); err != nil {
			return result, fmt.Errorf("dropping vector data for %s: %w", e.tenantID, err)
		}
	}
	return result, nil
}
