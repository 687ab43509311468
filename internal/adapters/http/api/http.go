// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/app/leaderboard"
	"github.com/okian/skillrank/internal/app/scheduler"
	"github.com/okian/skillrank/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RatingsDependencies
	LeaderboardDependencies
	PlayerDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	ratingsHandler     *RatingsHandler
	leaderboardHandler *LeaderboardHandler
	playerHandler      *PlayerHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		ratingsHandler:     NewRatingsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		playerHandler:      NewPlayerHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	for _, rt := range s.routes() {
		mux.Handle(rt.pattern, Instrument(rt.name, rt.handler))
	}
}

func (s *Server) routes() []route {
	return []route{
		{"GET /healthz", "healthz", s.healthHandler.HandleHealth},
		{"GET /stats", "stats", s.statsHandler.HandleStats},
		{"GET /ratings/status", "ratings_status", s.ratingsHandler.HandleStatus},
		{"POST /ratings/recalculate", "ratings_recalculate", s.ratingsHandler.HandleRecalculate},
		{"POST /ratings/recalculate/historical", "ratings_historical", s.ratingsHandler.HandleHistorical},
		{"GET /leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard},
		{"GET /players/{id}/rating", "player_rating", s.playerHandler.HandleGetRating},
		{"GET /players/{id}/history", "player_history", s.playerHandler.HandleGetHistory},
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps sentinel errors from lower layers to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "already_running", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidPeriod),
		errors.Is(err, model.ErrInvalidScope),
		errors.Is(err, leaderboard.ErrInvalidQuery),
		errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, scheduler.ErrRejected):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// scopeParam reads ?scope=, defaulting to overall.
func scopeParam(r *http.Request) (model.Scope, error) {
	return model.ParseScope(r.URL.Query().Get("scope"))
}

// intParam reads a non-negative integer query parameter, def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name)
	}
	return n, nil
}
