package httpapi

import (
	"net/http"

	"homerag/internal/orchestrator"
)

// Server exposes the RAG bridge's HTTP surface (§6.1).
type Server struct {
	orch  *orchestrator.Orchestrator
	ready func() bool
	mux   *http.ServeMux
}

// NewServer builds an HTTP API server wired to the orchestrator. ready
// reports readiness for /readyz; pass nil to always report ready.
func NewServer(orch *orchestrator.Orchestrator, ready func() bool) *Server {
	s := &Server{orch: orch, ready: ready, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /process-request", s.handleProcessRequest)
	s.mux.HandleFunc("POST /process-request-workflow", s.handleProcessRequestWorkflow)
	s.mux.HandleFunc("POST /process-response", s.handleProcessResponse)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
}
