package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/GophFill/internal/models"
)

// MatchService defines the match store operations needed by the MatchHandler.
type MatchService interface {
	MatchesFor(ctx context.Context, origin models.FormOrigin) ([]string, error)
	ClearMatches(ctx context.Context, origin models.FormOrigin) error
}

// MatchHandler exposes the remembered origin-to-entry associations.
type MatchHandler struct {
	MatchService MatchService
}

type matchesResponse struct {
	Origin  string   `json:"origin"`
	Entries []string `json:"entries"`
}

func originFromQuery(r *http.Request) (models.FormOrigin, error) {
	q := r.URL.Query()
	return models.OriginFromExtras(q.Get("web"), q.Get("app"))
}

// List handles GET /api/matches?web=...|app=...
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	origin, err := originFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	paths, err := h.MatchService.MatchesFor(r.Context(), origin)
	if err != nil {
		writeError(w, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, matchesResponse{Origin: origin.Key(), Entries: paths})
}

// Clear handles DELETE /api/matches?web=...|app=...
func (h *MatchHandler) Clear(w http.ResponseWriter, r *http.Request) {
	origin, err := originFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.MatchService.ClearMatches(r.Context(), origin); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
