// internal/api/http.go
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Chinzzii/docstore/internal/config"
	"github.com/Chinzzii/docstore/internal/persist"
	"github.com/Chinzzii/docstore/internal/store"
)

// Importer performs a bulk import into a Replacer.
// It's implemented by *persist.Gateway.
type Importer interface {
	ImportFrom(path string, r persist.Replacer) persist.ImportResult
	Path() string
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	cfg      *config.Config  // Server configuration
	store    *store.Store    // The in-memory Database
	importer Importer        // Bulk import into the store and its file
	log      log.FieldLogger // Structured logger
	decoder  *schema.Decoder // Decodes "_"-prefixed control parameters
	routed   []string        // Resources which received routes at startup
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Status is the JSON response for the /status endpoint.
type Status struct {
	File      string         `json:"file"`
	Resources map[string]int `json:"resources"` // Record count of each resource
	Routed    []string       `json:"routed"`    // Resources served under /api
	Auth      bool           `json:"auth"`
	Watch     bool           `json:"watch"`
}

// ImportRequest is the JSON body of POST /admin/import.
type ImportRequest struct {
	Path string `json:"path"`
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, st *store.Store, importer Importer, logger log.FieldLogger) *Server {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Server{
		cfg:      cfg,
		store:    st,
		importer: importer,
		log:      logger,
		decoder:  decoder,
	}
}

// Routes builds the HTTP handler. Resource routes are generated once, for
// the resources the store holds at this moment; resources appearing later
// (through an external edit or an import) are served after a restart.
func (s *Server) Routes() http.Handler {
	var router = mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Admin/status endpoints
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.cfg.Metrics.Path != "" {
		router.Handle(s.cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	var admin = router.PathPrefix("/admin").Subrouter()
	admin.MethodNotAllowedHandler = router.MethodNotAllowedHandler
	admin.Use(s.authGate)
	admin.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)

	// Resource endpoints
	router.Handle("/api", s.authGate(http.HandlerFunc(s.handleResources))).Methods(http.MethodGet)

	// Subrouters report their own method mismatches; the parent only sees a
	// failed match.
	var api = router.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = router.MethodNotAllowedHandler
	api.Use(s.authGate)

	s.routed = []string{}
	for _, name := range s.store.Resources() {
		if strings.ContainsAny(name, "{}/?#") || name == "" {
			s.log.WithField("resource", name).Warn("resource name cannot be routed; skipping")
			continue
		}
		resourceHandlers{name: name, s: s}.register(api)
		s.routed = append(s.routed, name)
	}
	s.log.WithField("resources", s.routed).Info("generated resource routes")

	return s.withLogging(s.withCORS(router))
}

// --- Admin & Status Handlers ---

// handleStatus returns counts of the current Database.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, Status{
		File:      s.importer.Path(),
		Resources: s.store.Counts(),
		Routed:    s.routed,
		Auth:      s.cfg.Auth.Enabled,
		Watch:     s.cfg.Store.Watch,
	})
}

// handleResources lists the resources served under /api.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{"resources": s.routed})
}

// handleImport replaces the Database with the content of a file on the
// server's filesystem. The outcome is reported in the body, not the status.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBody)).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusOK, persist.ImportResult{Message: "invalid import request: " + err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, s.importer.ImportFrom(req.Path, s.store))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, http.StatusNotFound, "Not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// --- Helper Methods ---

// respondJSON is a helper to write a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		var enc = json.NewEncoder(w)
		enc.SetEscapeHTML(false)

		if err := enc.Encode(payload); err != nil {
			// Headers are already written; all we can do is log.
			s.log.WithField("err", err).Error("failed to write json response")
		}
	}
}

// respondError is a helper to write a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	// Don't log 404s as server errors.
	if code != http.StatusNotFound {
		s.log.WithFields(log.Fields{"code": code, "message": message}).Warn("request failed")
	}
	s.respondJSON(w, code, ErrorResponse{Error: message})
}
