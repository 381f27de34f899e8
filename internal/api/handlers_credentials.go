package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/vaultgate/pkg/models"
	"github.com/rs/zerolog/log"
)

// CredentialIssueHandler handles POST /v1/sys/credentials. The response is
// the only place the new secret ever appears.
func (s *Server) CredentialIssueHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Manage) {
		return
	}

	var req struct {
		Name string               `json:"name"`
		Caps models.CapabilitySet `json:"capabilities"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	issued, err := s.creds.Issue(r.Context(), req.Name, req.Caps)
	if err != nil {
		s.observe(r, models.ActivityTool, "credentials.issue", start, err, map[string]any{"name": req.Name})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	credentialsTotal.Set(float64(s.creds.Len()))
	log.Info().Str("id", issued.ID).Str("name", issued.Name).Msg("credential issued")

	s.observe(r, models.ActivityTool, "credentials.issue", start, nil, map[string]any{"name": req.Name})
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           issued.ID,
		"name":         issued.Name,
		"secret":       issued.Secret,
		"capabilities": issued.Caps,
		"created_at":   issued.CreatedAt,
	})
}

// CredentialListHandler handles GET /v1/sys/credentials. Secrets are never
// included.
func (s *Server) CredentialListHandler(w http.ResponseWriter, r *http.Request) {
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Manage) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": s.creds.List()})
}

// CredentialRevokeHandler handles DELETE /v1/sys/credentials/{id}.
func (s *Server) CredentialRevokeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Manage) {
		return
	}

	id := chi.URLParam(r, "id")
	if !s.creds.Revoke(r.Context(), id) {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}
	credentialsTotal.Set(float64(s.creds.Len()))
	log.Info().Str("id", id).Msg("credential revoked")

	s.observe(r, models.ActivityTool, "credentials.revoke", start, nil, map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}
