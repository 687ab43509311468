package api

import (
	"context"
	"net/http"

	"github.com/okian/skillrank/internal/app/leaderboard"
	"github.com/okian/skillrank/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, scope model.Scope, minGames, limit int) ([]leaderboard.Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?scope=&min_games=&limit=.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	minGames, err := intParam(r, "min_games", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := intParam(r, "limit", leaderboard.DefaultLimit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.deps.Leaderboard(r.Context(), scope, minGames, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
