// Package api wires the session registry, dispatch manager, and transport
// hub into an HTTP surface: a small document-snapshot endpoint and the
// WebSocket upgrade that carries authentication, edits, sync, and
// presence. Grounded on teacher internal/api/server.go and
// internal/handler/websocket.go, merged into one package — the teacher
// pack splits routing (api) from the message loop (handler), but
// handler.go's handlers call s.upgrader/s.hub/s.manager on a Server type
// that package handler never declares, so that split doesn't compile as
// shipped. Access control is not carried forward (spec.md's Non-goals
// exclude it), so the teacher's per-request X-User-Id auth middleware has
// no work left to do here: identity now lives in the session established
// over the WebSocket's Login message, not an HTTP header.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arashov/collabedit/internal/dispatch"
	"github.com/arashov/collabedit/internal/session"
	"github.com/arashov/collabedit/internal/transport"
)

// Server handles the HTTP surface: document snapshots and the WebSocket
// upgrade.
type Server struct {
	registry    *session.Registry
	dispatchers *dispatch.Manager
	hub         *transport.Hub
	upgrader    websocket.Upgrader
}

// Config holds the dependencies a Server is built from.
type Config struct {
	Registry    *session.Registry
	Dispatchers *dispatch.Manager
	Hub         *transport.Hub
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server {
	return &Server{
		registry:    cfg.Registry,
		dispatchers: cfg.Dispatchers,
		hub:         cfg.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Handler returns the configured http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentByID)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// handleDocuments handles POST /documents: creating (lazily, via the
// dispatch manager) a document.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	s.handleCreateDocument(w, r)
}

// handleDocumentByID routes GET requests for /documents/{id}.
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetDocument(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
