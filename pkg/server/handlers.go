package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/meshfirm/lightrag/pkg/rag"
	"github.com/meshfirm/lightrag/pkg/storage"
)

const (
	defaultGraphDepth = 3
	defaultGraphNodes = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"tenants": s.manager.Len(),
	})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	var req rag.InsertRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := engine.Insert(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, "inserting document", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "document inserted",
		"tenant_id": engine.TenantID(),
		"doc_id":    result.DocID,
		"chunks":    result.Chunks,
	})
}

type queryRequest struct {
	Query        string          `json:"query"`
	Params       rag.QueryParams `json:"params"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	var req queryRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	answer, err := engine.Query(r.Context(), req.Query, req.Params, req.SystemPrompt)
	if err != nil {
		s.writeDomainError(w, "querying", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"result":    answer,
		"tenant_id": engine.TenantID(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	labels, err := engine.GraphLabels()
	if err != nil {
		s.writeDomainError(w, "reading status", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":         engine.TenantID(),
		"namespace":         engine.Namespace(),
		"processing_status": engine.ProcessingStatus(),
		"graph_labels":      labels,
		"working_dir":       engine.WorkingDir(),
	})
}

func (s *Server) handleDeleteData(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	result, err := engine.DeleteAllData()
	if err != nil {
		s.writeDomainError(w, "deleting data", engine.TenantID(), err)
		return
	}
	status := http.StatusOK
	if result.Status != "success" {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, map[string]any{
		"status":      result.Status,
		"message":     "all tenant data deleted",
		"tenant_id":   engine.TenantID(),
		"drop_result": result,
	})
}

func (s *Server) handleKnowledgeGraph(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	label := r.URL.Query().Get("label")
	if label == "" {
		label = storage.LabelWildcard
	}
	maxDepth := parseIntQuery(r, "max_depth", defaultGraphDepth)
	maxNodes := parseIntQuery(r, "max_nodes", defaultGraphNodes)

	graph, err := engine.KnowledgeGraph(label, maxDepth, maxNodes)
	if err != nil {
		s.writeDomainError(w, "retrieving knowledge graph", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, graph)
}

// handleLabelList serves tenant labels when an identity is present and
// falls back to the system-wide view otherwise. The fallback is read-only
// and deliberately loud in the logs.
func (s *Server) handleLabelList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tenantID, err := s.resolveTenantID(r)
	if err != nil {
		if !errors.Is(err, errNoTenant) {
			s.writeError(w, http.StatusBadRequest, "invalid tenant identity: "+err.Error())
			return
		}
		log.Printf("⚠️  label list requested without tenant identity, serving system-wide view")
		labels, err := s.manager.SystemGraphLabels()
		if err != nil {
			s.writeDomainError(w, "listing labels", "", err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"scope":  "system",
			"labels": labels,
		})
		return
	}

	engine, err := s.manager.GetOrCreate(tenantID)
	if err != nil {
		s.writeDomainError(w, "resolving instance", tenantID, err)
		return
	}
	labels, err := engine.GraphLabels()
	if err != nil {
		s.writeDomainError(w, "listing labels", tenantID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"scope":     "tenant",
		"tenant_id": tenantID,
		"labels":    labels,
	})
}

func (s *Server) handleEntityExists(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name parameter is required")
		return
	}
	exists, err := engine.EntityExists(name)
	if err != nil {
		s.writeDomainError(w, "checking entity", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"name":   name,
		"exists": exists,
	})
}

type entityEditRequest struct {
	EntityName  string         `json:"entity_name"`
	UpdatedData map[string]any `json:"updated_data"`
	AllowRename bool           `json:"allow_rename,omitempty"`
}

func (s *Server) handleEntityEdit(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	var req entityEditRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EntityName == "" {
		s.writeError(w, http.StatusBadRequest, "entity_name is required")
		return
	}
	data, err := engine.EditEntity(req.EntityName, req.UpdatedData, req.AllowRename)
	if err != nil {
		s.writeDomainError(w, "editing entity", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "entity updated",
		"data":    data,
	})
}

type relationEditRequest struct {
	SourceID    string         `json:"source_id"`
	TargetID    string         `json:"target_id"`
	UpdatedData map[string]any `json:"updated_data"`
}

func (s *Server) handleRelationEdit(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine) {
	var req relationEditRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		s.writeError(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}
	data, err := engine.EditRelation(req.SourceID, req.TargetID, req.UpdatedData)
	if err != nil {
		s.writeDomainError(w, "editing relation", engine.TenantID(), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "relation updated",
		"data":    data,
	})
}
