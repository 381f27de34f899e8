package api

import "net/http"

// HealthHandler handles GET /v1/sys/health. It is public; everything else
// sits behind the authentication gate.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"credentials": s.creds.Len(),
		"version":     "1.0.0",
	})
}
