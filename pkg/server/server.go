// Package server exposes the multi-tenant retrieval service over HTTP.
//
// Every tenant-scoped route resolves the caller's tenant identity first
// (explicit tenant_id parameter, X-Tenant-ID header, or bearer token) and
// asks the instance manager for that tenant's engine. Routes never touch
// storage directly; isolation lives below this layer.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/meshfirm/lightrag/pkg/auth"
	"github.com/meshfirm/lightrag/pkg/rag"
)

// Config holds server settings.
type Config struct {
	// Address to bind, e.g. "0.0.0.0"
	Address string
	// Port for the HTTP listener
	Port int
	// MaxRequestSize bounds request bodies in bytes
	MaxRequestSize int64
	// ReadTimeout and WriteTimeout guard slow clients
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:        "0.0.0.0",
		Port:           9621,
		MaxRequestSize: 16 * 1024 * 1024,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   120 * time.Second,
	}
}

// Server serves tenant document and graph routes over one instance
// manager.
type Server struct {
	config   *Config
	manager  *rag.Manager
	verifier *auth.Verifier

	httpServer *http.Server
	listener   net.Listener
}

// New builds a server. The manager is owned by the caller; Stop does not
// shut it down.
func New(manager *rag.Manager, verifier *auth.Verifier, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if verifier == nil {
		verifier = auth.NewVerifier("")
	}
	s := &Server{
		config:   config,
		manager:  manager,
		verifier: verifier,
	}
	s.httpServer = &http.Server{
		Handler:      s.recoveryMiddleware(s.loggingMiddleware(s.buildRouter())),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the fully wrapped route handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener and serves until Stop. Blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("🚀 HTTP server listening on %s", listener.Addr())
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	// Tenant document routes
	mux.HandleFunc("/tenant/documents/insert", s.withTenant(s.handleInsert, http.MethodPost))
	mux.HandleFunc("/tenant/documents/query", s.withTenant(s.handleQuery, http.MethodPost))
	mux.HandleFunc("/tenant/status", s.withTenant(s.handleStatus, http.MethodGet))
	mux.HandleFunc("/tenant/data", s.withTenant(s.handleDeleteData, http.MethodDelete))

	// Tenant graph routes
	mux.HandleFunc("/graphs", s.withTenant(s.handleKnowledgeGraph, http.MethodGet))
	mux.HandleFunc("/graph/entity/exists", s.withTenant(s.handleEntityExists, http.MethodGet))
	mux.HandleFunc("/graph/entity/edit", s.withTenant(s.handleEntityEdit, http.MethodPost))
	mux.HandleFunc("/graph/relation/edit", s.withTenant(s.handleRelationEdit, http.MethodPost))

	// Label listing is the one route allowed to fall back to a
	// system-wide view when no tenant identity is supplied.
	mux.HandleFunc("/graph/label/list", s.handleLabelList)

	mux.HandleFunc("/health", s.handleHealth)

	return mux
}
