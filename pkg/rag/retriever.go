package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/meshfirm/lightrag/pkg/kv"
	"github.com/meshfirm/lightrag/pkg/llm"
	"github.com/meshfirm/lightrag/pkg/storage"
	"github.com/meshfirm/lightrag/pkg/vector"
)

// DefaultSplitSeparator splits documents into chunks when the caller does
// not supply one.
const DefaultSplitSeparator = "\n\n"

const defaultTopK = 5

// capitalizedTerm matches the naive entity candidates the retriever links
// into the tenant graph. Deliberately simple: real extraction is a pluggable
// concern, this keeps the graph populated end to end.
var capitalizedTerm = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]+\b`)

// termStopwords excludes sentence-initial noise from entity linking.
var termStopwords = map[string]struct{}{
	"The": {}, "A": {}, "An": {}, "It": {}, "This": {}, "That": {},
	"These": {}, "Those": {}, "There": {}, "When": {}, "Where": {},
	"What": {}, "Who": {}, "How": {}, "And": {}, "But": {}, "If": {},
}

// InsertRequest is one document to ingest.
type InsertRequest struct {
	Document         string `json:"document"`
	SplitByCharacter string `json:"split_by_character,omitempty"`
	DocID            string `json:"doc_id,omitempty"`
	FilePath         string `json:"file_path,omitempty"`
}

// InsertResult reports what ingestion stored.
type InsertResult struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
}

// QueryParams tune retrieval.
type QueryParams struct {
	TopK        int  `json:"top_k,omitempty"`
	OnlyContext bool `json:"only_context,omitempty"`
}

// DocStatus is the per-document processing record kept in the KV store.
type DocStatus struct {
	DocID    string `json:"doc_id"`
	FilePath string `json:"file_path,omitempty"`
	Status   string `json:"status"`
	Chunks   int    `json:"chunks"`
}

// Retriever is the reference retrieval engine. It chunks documents, stores
// chunk text in the tenant KV store, embeds chunks into the tenant vector
// collection, and links capitalized terms into the tenant graph. One
// retriever serves exactly one tenant; every store it holds is
// namespace-bound by construction.
type Retriever struct {
	chunks  *kv.Store
	vectors *vector.Store
	graph   *storage.NamespacedGraph
	embed   llm.EmbeddingFunc
	model   llm.ModelFunc
}

// NewRetriever binds a retriever to one tenant's stores. model may be nil;
// queries then return the retrieved context instead of a synthesized answer.
func NewRetriever(chunks *kv.Store, vectors *vector.Store, graph *storage.NamespacedGraph, embed llm.EmbeddingFunc, model llm.ModelFunc) *Retriever {
	return &Retriever{chunks: chunks, vectors: vectors, graph: graph, embed: embed, model: model}
}

// Insert ingests one document.
func (r *Retriever) Insert(ctx context.Context, req InsertRequest) (*InsertResult, error) {
	if strings.TrimSpace(req.Document) == "" {
		return nil, fmt.Errorf("%w: document must not be empty", ErrValidation)
	}

	docID := req.DocID
	if docID == "" {
		docID = uuid.NewString()
	}

	separator := req.SplitByCharacter
	if separator == "" {
		separator = DefaultSplitSeparator
	}
	chunks := splitDocument(req.Document, separator)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no chunks", ErrValidation)
	}

	docs := make([]vector.Document, 0, len(chunks))
	for i, chunk := range chunks {
		key := fmt.Sprintf("chunk:%s:%d", docID, i)
		if err := r.chunks.Set(key, []byte(chunk)); err != nil {
			return nil, fmt.Errorf("storing chunk %s: %w", key, err)
		}
		docs = append(docs, vector.Document{
			ID:      fmt.Sprintf("%s:%d", docID, i),
			Content: chunk,
			Metadata: map[string]string{
				"doc_id":    docID,
				"file_path": req.FilePath,
			},
		})
		if err := r.linkEntities(chunk, docID, req.FilePath); err != nil {
			return nil, err
		}
	}

	if err := r.vectors.Add(ctx, docs); err != nil {
		return nil, err
	}

	status := DocStatus{DocID: docID, FilePath: req.FilePath, Status: "processed", Chunks: len(chunks)}
	if err := r.chunks.SetJSON("status:"+docID, status); err != nil {
		return nil, fmt.Errorf("storing doc status: %w", err)
	}
	return &InsertResult{DocID: docID, Chunks: len(chunks)}, nil
}

// Query retrieves the most similar chunks and, when a model is configured,
// synthesizes an answer from them. Without a model (or when OnlyContext is
// set) the assembled context is returned directly.
func (r *Retriever) Query(ctx context.Context, query string, params QueryParams, systemPrompt string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	topK := params.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	hits, err := r.vectors.Search(ctx, query, topK)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No relevant context found.", nil
	}

	var sb strings.Builder
	for i, hit := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(hit.Content)
	}
	contextText := sb.String()

	if r.model == nil || params.OnlyContext {
		return contextText, nil
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + prompt
	}
	answer, err := r.model(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("model invocation failed: %w", err)
	}
	return answer, nil
}

// linkEntities upserts the chunk's capitalized terms as graph entities and
// relates consecutive co-occurrences.
func (r *Retriever) linkEntities(chunk, docID, filePath string) error {
	terms := extractTerms(chunk)
	for _, term := range terms {
		props := map[string]any{
			"source_id": docID,
		}
		if filePath != "" {
			props["file_path"] = filePath
		}
		if err := r.graph.UpsertNode(term, props); err != nil {
			return fmt.Errorf("upserting entity %s: %w", term, err)
		}
	}
	for i := 1; i < len(terms); i++ {
		props := map[string]any{"source_id": docID}
		if err := r.graph.UpsertEdge(terms[i-1], terms[i], props); err != nil {
			return fmt.Errorf("upserting relation %s -> %s: %w", terms[i-1], terms[i], err)
		}
	}
	return nil
}

func splitDocument(document, separator string) []string {
	parts := strings.Split(document, separator)
	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			chunks = append(chunks, part)
		}
	}
	return chunks
}

// extractTerms returns the chunk's candidate entities in order of first
// appearance, deduplicated.
func extractTerms(chunk string) []string {
	seen := map[string]struct{}{}
	var terms []string
	for _, term := range capitalizedTerm.FindAllString(chunk, -1) {
		if _, stop := termStopwords[term]; stop {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}
