package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ActivityListHandler handles GET /v1/activity?limit=.
func (s *Server) ActivityListHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": s.tracker.List(limit)})
}

// ActivityGetHandler handles GET /v1/activity/{name}.
func (s *Server) ActivityGetHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	agg := s.tracker.Get(name)
	if agg == nil {
		writeError(w, http.StatusNotFound, "no activity recorded for credential")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activity":    agg,
		"last_active": agg.LastActive(),
	})
}
