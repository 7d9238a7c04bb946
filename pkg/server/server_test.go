package server

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshfirm/lightrag/pkg/auth"
	"github.com/meshfirm/lightrag/pkg/rag"
	"github.com/meshfirm/lightrag/pkg/storage"
)

func wordEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%32]++
	}
	return vec, nil
}

func newTestServer(t *testing.T, jwtSecret string) *Server {
	t.Helper()
	manager, err := rag.NewManager(rag.Config{
		Graph:          storage.NewMemoryEngine(),
		Embedding:      wordEmbedding,
		InMemoryStores: true,
	}, rag.ManagerOptions{})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)
	return New(manager, auth.NewVerifier(jwtSecret), nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	rec, body := doJSON(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestTenantIdentityRequired(t *testing.T) {
	s := newTestServer(t, "")

	rec, body := doJSON(t, s, http.MethodPost, "/tenant/documents/insert", map[string]any{"document": "hi"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", body["status"])

	rec, _ = doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id=bad/id", map[string]any{"document": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, "")
	rec, _ := doJSON(t, s, http.MethodGet, "/tenant/documents/insert?tenant_id=alice", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInsertQueryStatusRoundTrip(t *testing.T) {
	s := newTestServer(t, "")

	rec, body := doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id=alice", map[string]any{
		"document": "The dragon Smaug guards Erebor.",
		"doc_id":   "doc1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "alice", body["tenant_id"])
	assert.Equal(t, "doc1", body["doc_id"])

	rec, body = doJSON(t, s, http.MethodPost, "/tenant/documents/query?tenant_id=alice", map[string]any{
		"query": "who guards Erebor",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["result"], "Smaug")

	rec, body = doJSON(t, s, http.MethodGet, "/tenant/status?tenant_id=alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["tenant_id"])
	assert.Equal(t, "user_alice_", body["namespace"])
	assert.Contains(t, body["graph_labels"], "Smaug")
	assert.NotEmpty(t, body["working_dir"])
}

func TestBearerTokenIdentity(t *testing.T) {
	s := newTestServer(t, "test-secret")
	verifier := auth.NewVerifier("test-secret")
	token, err := verifier.IssueToken("carol", time.Hour)
	require.NoError(t, err)

	header := http.Header{"Authorization": {"Bearer " + token}}
	rec, body := doJSON(t, s, http.MethodGet, "/tenant/status", nil, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", body["tenant_id"])

	// A token signed with another secret is rejected.
	otherToken, err := auth.NewVerifier("other-secret").IssueToken("carol", time.Hour)
	require.NoError(t, err)
	rec, _ = doJSON(t, s, http.MethodGet, "/tenant/status", nil, http.Header{"Authorization": {"Bearer " + otherToken}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLabelListFallback(t *testing.T) {
	s := newTestServer(t, "")

	_, _ = doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id=alice", map[string]any{
		"document": "Smaug guards Erebor.",
	}, nil)

	// No identity: system-wide fallback, physical ids visible.
	rec, body := doJSON(t, s, http.MethodGet, "/graph/label/list", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "system", body["scope"])
	assert.Contains(t, body["labels"], "user_alice_:Smaug")

	// With identity: tenant-scoped entity ids.
	rec, body = doJSON(t, s, http.MethodGet, "/graph/label/list?tenant_id=alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant", body["scope"])
	assert.Contains(t, body["labels"], "Smaug")
}

func TestEntityRoutes(t *testing.T) {
	s := newTestServer(t, "")

	_, _ = doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id=alice", map[string]any{
		"document": "Smaug guards Erebor.",
	}, nil)

	rec, body := doJSON(t, s, http.MethodGet, "/graph/entity/exists?tenant_id=alice&name=Smaug", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["exists"])

	rec, body = doJSON(t, s, http.MethodGet, "/graph/entity/exists?tenant_id=alice&name=Gandalf", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["exists"])

	rec, _ = doJSON(t, s, http.MethodGet, "/graph/entity/exists?tenant_id=alice", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Property edit.
	rec, body = doJSON(t, s, http.MethodPost, "/graph/entity/edit?tenant_id=alice", map[string]any{
		"entity_name":  "Smaug",
		"updated_data": map[string]any{"description": "a dragon"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "a dragon", data["description"])

	// Rename without allow_rename is a validation error.
	rec, _ = doJSON(t, s, http.MethodPost, "/graph/entity/edit?tenant_id=alice", map[string]any{
		"entity_name":  "Smaug",
		"updated_data": map[string]any{"entity_name": "Wyrm"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Editing a missing entity is not found.
	rec, _ = doJSON(t, s, http.MethodPost, "/graph/entity/edit?tenant_id=alice", map[string]any{
		"entity_name":  "Gandalf",
		"updated_data": map[string]any{"x": 1},
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Relation edit.
	rec, body = doJSON(t, s, http.MethodPost, "/graph/relation/edit?tenant_id=alice", map[string]any{
		"source_id":    "Smaug",
		"target_id":    "Erebor",
		"updated_data": map[string]any{"keywords": "guards"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = body["data"].(map[string]any)
	assert.Equal(t, "guards", data["keywords"])

	rec, _ = doJSON(t, s, http.MethodPost, "/graph/relation/edit?tenant_id=alice", map[string]any{
		"source_id":    "Smaug",
		"target_id":    "Gandalf",
		"updated_data": map[string]any{},
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKnowledgeGraphRoute(t *testing.T) {
	s := newTestServer(t, "")

	_, _ = doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id=alice", map[string]any{
		"document": "Smaug guards Erebor. Bard slays Smaug.",
	}, nil)

	rec, body := doJSON(t, s, http.MethodGet, "/graphs?tenant_id=alice&label=Smaug&max_depth=2&max_nodes=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nodes := body["nodes"].([]any)
	assert.NotEmpty(t, nodes)
	assert.Equal(t, false, body["is_truncated"])

	rec, _ = doJSON(t, s, http.MethodGet, "/graphs?tenant_id=alice&max_depth=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteData(t *testing.T) {
	s := newTestServer(t, "")

	_, _ = doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id=alice", map[string]any{
		"document": "Smaug guards Erebor.",
	}, nil)

	rec, body := doJSON(t, s, http.MethodDelete, "/tenant/data?tenant_id=alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "alice", body["tenant_id"])

	rec, body = doJSON(t, s, http.MethodGet, "/tenant/status?tenant_id=alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["graph_labels"])
}

func TestTwoTenantIsolationOverHTTP(t *testing.T) {
	s := newTestServer(t, "")

	for _, tenant := range []string{"t1", "t2"} {
		rec, _ := doJSON(t, s, http.MethodPost, "/tenant/documents/insert?tenant_id="+tenant, map[string]any{
			"document": "The sky is blue. Smaug watches.",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	for _, tenant := range []string{"t1", "t2"} {
		rec, body := doJSON(t, s, http.MethodPost, "/tenant/documents/query?tenant_id="+tenant, map[string]any{
			"query": "what color is the sky",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, body["result"], "The sky is blue.")
		assert.Equal(t, tenant, body["tenant_id"])
	}

	// t2's graph labels never mention t1's namespace and vice versa.
	_, body := doJSON(t, s, http.MethodGet, "/tenant/status?tenant_id=t1", nil, nil)
	assert.Equal(t, "user_t1_", body["namespace"])
	for _, label := range body["graph_labels"].([]any) {
		assert.NotContains(t, label, "user_t2_")
	}

	// Deleting t1's data leaves t2 intact.
	rec, _ := doJSON(t, s, http.MethodDelete, "/tenant/data?tenant_id=t1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, body = doJSON(t, s, http.MethodGet, "/tenant/status?tenant_id=t2", nil, nil)
	assert.Contains(t, body["graph_labels"], "Smaug")
}
