package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/meshfirm/lightrag/pkg/namespace"
	"github.com/meshfirm/lightrag/pkg/rag"
	"github.com/meshfirm/lightrag/pkg/storage"
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// JSON helpers

func (s *Server) readJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
		"code":    status,
	})
}

// writeDomainError maps an engine error to an HTTP status. Validation and
// not-found problems become 4xx; storage outages 503; everything else 500.
// The message carries the operation and tenant but never credentials.
func (s *Server) writeDomainError(w http.ResponseWriter, operation, tenantID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rag.ErrValidation),
		errors.Is(err, storage.ErrInvalidData),
		errors.Is(err, storage.ErrInvalidID),
		errors.Is(err, namespace.ErrInvalidTenantID):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrStorageUnavailable),
		errors.Is(err, storage.ErrStorageClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrInstanceCreationFailed):
		// Creation failures caused by a bad tenant id are client errors;
		// the nested cause decides above. Anything else is an outage.
		status = http.StatusServiceUnavailable
	}
	message := operation
	if tenantID != "" {
		message += " for tenant " + tenantID
	}
	message += ": " + err.Error()
	s.writeError(w, status, message)
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	if val := r.URL.Query().Get(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
