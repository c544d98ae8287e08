// Package api exposes progress tracking over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/session"
)

const (
	maxBodyBytes = 1 << 20
	checkTimeout = 2 * time.Second
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds dependencies for the HTTP API.
type Config struct {
	Engine    *session.Engine
	Analytics *analytics.Service
	Live      *progress.Broadcaster     // optional; enables /live
	Checks    map[string]HealthChecker // consulted by /readyz
	Logger    *slog.Logger             // default slog.Default()
}

// Server serves the progress API.
type Server struct {
	engine    *session.Engine
	analytics *analytics.Service
	live      *progress.Broadcaster
	checks    map[string]HealthChecker
	logger    *slog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    cfg.Engine,
		analytics: cfg.Analytics,
		live:      cfg.Live,
		checks:    cfg.Checks,
		logger:    logger,
	}
}

// Handler returns the router wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /students", s.handleStudents)
	mux.HandleFunc("POST /students/{name}/submissions", s.handleSubmission)
	mux.HandleFunc("POST /students/{name}/ratings", s.handleRating)
	mux.HandleFunc("GET /students/{name}/summary", s.handleSummary)
	mux.HandleFunc("GET /students/{name}/weak-topics", s.handleWeakTopics)
	mux.HandleFunc("GET /students/{name}/report", s.handleReport)
	mux.HandleFunc("GET /students/{name}/recommendations", s.handleRecommendations)
	mux.HandleFunc("GET /students/{name}/plan", s.handlePlan)
	mux.HandleFunc("GET /students/{name}/topics", s.handleTopics)
	mux.HandleFunc("GET /students/{name}/topics/{topic}/task", s.handleTask)
	mux.HandleFunc("GET /students/{name}/practice", s.handleRandomPractice)
	mux.HandleFunc("GET /students/{name}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /students/{name}/export.xlsx", s.handleExport)
	if s.live != nil {
		mux.HandleFunc("GET /students/{name}/live", s.handleLive)
	}

	return s.requestID(s.logRequests(s.recoverPanics(mux)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeFailure maps an operation error to a status code. Internal errors are
// logged and hidden from the client.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var writeErr *progress.StorageWriteError
	switch {
	case errors.Is(err, session.ErrEmptyStudent),
		errors.Is(err, session.ErrEmptyText),
		errors.Is(err, session.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrUnknownTopic),
		errors.Is(err, session.ErrNoTask),
		errors.Is(err, session.ErrNoWeakTopics):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, progress.ErrRecordUnreadable):
		s.logger.Error("stored progress unreadable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusConflict, "stored progress for this student cannot be read")
	case errors.As(err, &writeErr):
		s.logger.Error("progress not saved", "student", writeErr.Student, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "progress could not be saved")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
