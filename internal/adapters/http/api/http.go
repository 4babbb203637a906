// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/clutch/internal/domain/ingest"
	"github.com/okian/clutch/internal/domain/model"
	"github.com/okian/clutch/internal/domain/types"
	"github.com/okian/clutch/internal/pipeline"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest starts a session for a webhook delivery.
	Ingest(ctx context.Context, req ingest.Request) (pipeline.Receipt, error)

	// Read operations expose session status and subject history.
	Session(ctx context.Context, id string) (types.SessionView, error)
	History(ctx context.Context, subjectID string, windowDays int) (types.HistoryView, error)

	// Cancel stops a session before synthesis.
	Cancel(ctx context.Context, id string) (model.Session, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	videosHandler   *VideosHandler
	sessionsHandler *SessionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		videosHandler:   NewVideosHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /v1/videos", MetricsMiddleware(s.videosHandler.HandlePostVideo, "videos"))
	mux.HandleFunc("GET /v1/sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGetSession, "session"))
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", MetricsMiddleware(s.sessionsHandler.HandleCancel, "cancel"))
	mux.HandleFunc("GET /v1/subjects/{id}/sessions", MetricsMiddleware(s.sessionsHandler.HandleHistory, "history"))
}

type errorResponse struct {
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Problems []ingest.Problem `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Problems: problemsOf(err)})
}
