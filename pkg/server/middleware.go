package server

import (
	"errors"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/meshfirm/lightrag/pkg/namespace"
	"github.com/meshfirm/lightrag/pkg/rag"
)

// errNoTenant means the request carried no tenant identity at all.
var errNoTenant = errors.New("no tenant identity supplied")

// tenantHandler is a handler bound to a resolved tenant engine.
type tenantHandler func(w http.ResponseWriter, r *http.Request, engine *rag.TenantEngine)

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("💥 panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, rw.status, time.Since(start).Round(time.Microsecond))
	})
}

// resolveTenantID extracts the caller's tenant identity. Precedence:
// explicit tenant_id query parameter, X-Tenant-ID header, then the bearer
// token's subject. Returns errNoTenant when nothing was supplied.
func (s *Server) resolveTenantID(r *http.Request) (string, error) {
	if tenantID := r.URL.Query().Get("tenant_id"); tenantID != "" {
		if err := namespace.ValidateTenantID(tenantID); err != nil {
			return "", err
		}
		return tenantID, nil
	}
	if tenantID := r.Header.Get("X-Tenant-ID"); tenantID != "" {
		if err := namespace.ValidateTenantID(tenantID); err != nil {
			return "", err
		}
		return tenantID, nil
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		return s.verifier.TenantFromToken(token)
	}
	return "", errNoTenant
}

// withTenant enforces the HTTP method, resolves the tenant identity, and
// hands the handler that tenant's engine. Requests without any identity
// are rejected: tenant routes never fall back to an unpartitioned store.
func (s *Server) withTenant(handler tenantHandler, method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		tenantID, err := s.resolveTenantID(r)
		if errors.Is(err, errNoTenant) {
			s.writeError(w, http.StatusUnauthorized, "tenant identity required: pass tenant_id, X-Tenant-ID, or a bearer token")
			return
		}
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid tenant identity: "+err.Error())
			return
		}
		engine, err := s.manager.GetOrCreate(tenantID)
		if err != nil {
			s.writeDomainError(w, "resolving instance", tenantID, err)
			return
		}
		handler(w, r, engine)
	}
}
