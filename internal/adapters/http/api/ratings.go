package api

import (
	"context"
	"net/http"

	"github.com/okian/skillrank/internal/app/scheduler"
	"github.com/okian/skillrank/internal/domain/model"
)

// RatingsDependencies defines the interface for recalculation control.
type RatingsDependencies interface {
	Status(ctx context.Context) (scheduler.Status, error)
	Trigger(ctx context.Context, p *model.Period) (scheduler.Accepted, error)
	TriggerHistorical(ctx context.Context) (scheduler.Accepted, error)
}

// RatingsHandler handles the /ratings control endpoints.
type RatingsHandler struct {
	deps RatingsDependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingsDependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// HandleStatus handles GET /ratings/status requests.
func (h *RatingsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Status(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleRecalculate handles POST /ratings/recalculate?period=YYYY-MM.
// Without a period the previous calendar month is recalculated.
func (h *RatingsHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	var p *model.Period
	if raw := r.URL.Query().Get("period"); raw != "" {
		parsed, err := model.ParsePeriod(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		p = &parsed
	}
	acc, err := h.deps.Trigger(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acc)
}

// HandleHistorical handles POST /ratings/recalculate/historical.
func (h *RatingsHandler) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	acc, err := h.deps.TriggerHistorical(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acc)
}
