package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/skillrank/internal/domain/model"
)

// PlayerDependencies defines the interface for per-player reads.
type PlayerDependencies interface {
	Player(ctx context.Context, scope model.Scope, playerID string) (model.PlayerRating, error)
	History(ctx context.Context, scope model.Scope, playerID string, limit int) ([]model.HistoryPoint, error)
}

// PlayerHandler handles /players/{id} requests.
type PlayerHandler struct {
	deps PlayerDependencies
}

// NewPlayerHandler creates a new player handler.
func NewPlayerHandler(deps PlayerDependencies) *PlayerHandler {
	return &PlayerHandler{deps: deps}
}

func playerID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", fmt.Errorf("%w: missing player id", ErrBadRequest)
	}
	return id, nil
}

// HandleGetRating handles GET /players/{id}/rating?scope=.
func (h *PlayerHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rating, err := h.deps.Player(r.Context(), scope, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

// HandleGetHistory handles GET /players/{id}/history?scope=&limit=.
func (h *PlayerHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	points, err := h.deps.History(r.Context(), scope, id, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if points == nil {
		points = []model.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}
