// Package vector wraps chromem-go with per-tenant collections. Each tenant
// engine instance owns one collection named after its namespace; dropping a
// tenant deletes the collection without touching any other.
package vector

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// EmbeddingFunc produces an embedding for a single text. It is the seam the
// tenant engine uses to plug in a real provider or a test stub.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// Document is one embedded chunk of tenant content.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// SearchResult is one similarity hit.
type SearchResult struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Store is the vector store for one tenant. The collection name is the
// tenant namespace, so two tenants never share a collection even when they
// share the underlying DB directory.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// Open opens a persistent store at dir and binds it to the collection named
// by namespace.
func Open(dir, namespace string, embed EmbeddingFunc) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vector store directory %s: %w", dir, err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", dir, err)
	}
	return bind(db, namespace, embed)
}

// OpenInMemory opens a volatile store. For tests.
func OpenInMemory(namespace string, embed EmbeddingFunc) (*Store, error) {
	return bind(chromem.NewDB(), namespace, embed)
}

func bind(db *chromem.DB, namespace string, embed EmbeddingFunc) (*Store, error) {
	collection, err := db.GetOrCreateCollection(namespace, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", namespace, err)
	}
	return &Store{db: db, collection: collection, name: namespace}, nil
}

// Add embeds and stores the given documents.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
	}
	if err := s.collection.AddDocuments(ctx, chromemDocs, 2); err != nil {
		return fmt.Errorf("adding documents to %s: %w", s.name, err)
	}
	return nil
}

// Search returns up to k documents most similar to query. k is clamped to
// the collection size; an empty collection yields no results.
func (s *Store) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	hits, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.name, err)
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			ID:         hit.ID,
			Content:    hit.Content,
			Metadata:   hit.Metadata,
			Similarity: hit.Similarity,
		}
	}
	return results, nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Drop deletes the tenant's collection and recreates it empty.
func (s *Store) Drop(embed EmbeddingFunc) error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.name, err)
	}
	collection, err := s.db.GetOrCreateCollection(s.name, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return fmt.Errorf("recreating collection %s: %w", s.name, err)
	}
	s.collection = collection
	return nil
}

// Close releases the store. chromem persists on write, so this only drops
// the in-process handle.
func (s *Store) Close() error {
	s.db = nil
	s.collection = nil
	return nil
}
