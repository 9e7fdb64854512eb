package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/szaher/contractbot/internal/auth"
	"github.com/szaher/contractbot/internal/engine"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/store"
	"github.com/szaher/contractbot/internal/telemetry"
)

// maxBodyBytes bounds a turn request body.
const maxBodyBytes = 64 << 10

// Server is the HTTP front end of the engine.
type Server struct {
	engine    *engine.Engine
	store     store.Store
	metrics   *telemetry.Metrics
	limiter   *auth.RateLimiter
	apiKey    string
	version   string
	mux       *http.ServeMux
	logger    *slog.Logger
	startTime time.Time
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey requires a bearer key on /v1/ routes.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimiter applies per-client rate limits on /v1/ routes.
func WithRateLimiter(rl *auth.RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithMetrics exposes /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates the HTTP server.
func NewServer(eng *engine.Engine, st store.Store, opts ...ServerOption) *Server {
	s := &Server{
		engine:    eng,
		store:     st,
		logger:    slog.Default(),
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /v1/flows", s.handleListFlows)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/contracts/{id}", s.handleGetContract)
	s.mux = mux
	return s
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.limiter != nil {
		h = apiOnly(s.limiter.Middleware(auth.ClientIPKeyFunc))(h)
	}
	h = auth.Middleware(auth.Options{APIKey: s.apiKey, Prefix: "/v1/", Limiter: s.limiter, Logger: s.logger})(h)
	h = s.requestLogger(h)
	return correlate(h)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	storeStatus := "ok"
	if err := s.store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storeStatus = err.Error()
	}
	writeJSON(w, code, map[string]interface{}{
		"status":   status,
		"store":    storeStatus,
		"uptime":   time.Since(s.startTime).String(),
		"sessions": s.engine.Registry().Len(),
		"version":  s.version,
	})
}

func (s *Server) handleListFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"flows": s.engine.Flows().Describe()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.engine.Registry().GetOrCreate(session.NewID())
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": sess.ID,
		"state":      sess.State,
		"created_at": sess.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.engine.Registry().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Session %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.Registry().Remove(id) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Session %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	res, err := s.engine.ProcessTurn(r.Context(), id, req.Input)
	if err != nil {
		telemetry.RequestLogger(s.logger, r.Context(), id).Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := s.store.Contract(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Contract %q not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	lists, err := s.store.Checklists(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if lists == nil {
		lists = []store.Checklist{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract":   c,
		"checklists": lists,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
