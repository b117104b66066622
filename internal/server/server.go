// Package server exposes the browsing engine over a JSON HTTP boundary. Every
// operation response is well-formed JSON; failures travel as a short error
// string in the body, never as a bare 500.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vantage-db/vantage/internal/driver"
	"github.com/vantage-db/vantage/internal/engine"
)

// Browser is the engine surface the HTTP layer needs.
type Browser interface {
	TestConnection(ctx context.Context, desc engine.ConnectionDescriptor) driver.TestConnectionResult
	TestTunnel(desc engine.ConnectionDescriptor) error
	Schema(ctx context.Context, desc engine.ConnectionDescriptor) ([]driver.TableSchema, error)
	Tables(ctx context.Context, desc engine.ConnectionDescriptor) ([]driver.TableInfo, error)
	Query(ctx context.Context, desc engine.ConnectionDescriptor, params driver.QueryParams) (*driver.QueryResult, error)
	Execute(ctx context.Context, desc engine.ConnectionDescriptor, query string) (*driver.RawQueryResult, error)
}

// Server routes the four browsing operations plus table listing and history.
type Server struct {
	browser Browser
	history History
	log     *slog.Logger
}

// New builds a server over the given engine and history collaborator.
func New(browser Browser, history History, log *slog.Logger) *Server {
	return &Server{browser: browser, history: history, log: log}
}

// Handler assembles the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/test-connection", s.handleTestConnection)
		r.Post("/schema", s.handleSchema)
		r.Post("/tables", s.handleTables)
		r.Post("/query", s.handleQuery)
		r.Post("/execute", s.handleExecute)
		r.Get("/history", s.handleHistory)
	})

	return r
}

type testConnectionRequest struct {
	engine.ConnectionDescriptor
	// SSHOnly asks for an SSH auth probe without touching the database.
	SSHOnly bool `json:"sshOnly,omitempty"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.SSHOnly {
		if err := s.browser.TestTunnel(req.ConnectionDescriptor); err != nil {
			s.logFailure(r, "test-tunnel", err)
			writeJSON(w, http.StatusOK, driver.TestConnectionResult{Success: false, Error: engine.Describe(err)})
			return
		}
		writeJSON(w, http.StatusOK, driver.TestConnectionResult{Success: true})
		return
	}

	writeJSON(w, http.StatusOK, s.browser.TestConnection(r.Context(), req.ConnectionDescriptor))
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	var desc engine.ConnectionDescriptor
	if !s.decode(w, r, &desc) {
		return
	}

	schemas, err := s.browser.Schema(r.Context(), desc)
	if err != nil {
		s.logFailure(r, "schema", err)
		writeJSON(w, http.StatusOK, errorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schemas})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	var desc engine.ConnectionDescriptor
	if !s.decode(w, r, &desc) {
		return
	}

	tables, err := s.browser.Tables(r.Context(), desc)
	if err != nil {
		s.logFailure(r, "tables", err)
		writeJSON(w, http.StatusOK, errorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

type queryRequest struct {
	engine.ConnectionDescriptor
	driver.QueryParams
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.browser.Query(r.Context(), req.ConnectionDescriptor, req.QueryParams)
	if err != nil {
		s.logFailure(r, "query", err)
		writeJSON(w, http.StatusOK, errorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type executeRequest struct {
	engine.ConnectionDescriptor
	Query string `json:"query"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.browser.Execute(r.Context(), req.ConnectionDescriptor, req.Query)
	if err != nil {
		s.logFailure(r, "execute", err)
		result = &driver.RawQueryResult{Error: engine.Describe(err)}
	}

	s.history.Append(HistoryEntry{
		Query:         req.Query,
		ExecutionTime: result.ExecutionTime,
		RowCount:      result.RowCount,
		Success:       err == nil && result.Error == "",
		Error:         result.Error,
	})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.history.Entries()})
}

// decode reads a JSON body, answering 400 with an error body when it is
// malformed. Returns false when the handler should stop.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *Server) logFailure(r *http.Request, op string, err error) {
	s.log.Warn("operation failed",
		"op", op,
		"kind", string(engine.Classify(err)),
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": engine.Describe(err)}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
