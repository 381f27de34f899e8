package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/vaultgate/internal/access"
	"github.com/org/vaultgate/internal/vault"
	"github.com/org/vaultgate/pkg/models"
)

// requireCap enforces a credential capability flag at the handler boundary.
// Capability flags gate which integrations a credential may invoke; they are
// separate from (and checked before) the per-path access decision.
func requireCap(w http.ResponseWriter, allowed bool) bool {
	if !allowed {
		writeError(w, http.StatusForbidden, "capability not granted")
		return false
	}
	return true
}

// writeAccessError maps facade assertion errors onto responses, keeping the
// read-only message distinct from a plain denial.
func writeAccessError(w http.ResponseWriter, err error) {
	var ro *access.ReadOnlyError
	if errors.As(err, &ro) {
		accessDecisionsTotal.WithLabelValues("readonly").Inc()
		writeError(w, http.StatusForbidden, ro.Error())
		return
	}
	var denied *access.AccessDeniedError
	if errors.As(err, &denied) {
		accessDecisionsTotal.WithLabelValues("denied").Inc()
		writeError(w, http.StatusForbidden, denied.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// FileGetHandler handles GET /v1/vault/files/*path.
// A path the credential may not read answers 404, same as a missing one, so
// probing cannot reveal that a blocked note exists.
func (s *Server) FileGetHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.FileAccess) {
		return
	}
	path := chi.URLParam(r, "*")

	if !s.gate.IsReadable(r.Context(), path, cred) {
		accessDecisionsTotal.WithLabelValues("denied").Inc()
		s.observe(r, models.ActivityResource, "vault.read", start, &access.AccessDeniedError{Path: path}, map[string]any{"path": path})
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	accessDecisionsTotal.WithLabelValues("allowed").Inc()

	data, err := s.vault.Read(r.Context(), path)
	if err != nil {
		s.observe(r, models.ActivityResource, "vault.read", start, err, map[string]any{"path": path})
		if errors.Is(err, vault.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityResource, "vault.read", start, nil, map[string]any{"path": path})
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"content": string(data),
	})
}

// FilePutHandler handles PUT /v1/vault/files/*path (create or overwrite).
// Overwrites go through the file-level override check; creations evaluate
// the parent directory directly since no front matter exists yet.
func (s *Server) FilePutHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.ContentMutation) {
		return
	}
	path := chi.URLParam(r, "*")

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.observe(r, models.ActivityError, "vault.write", start, err, map[string]any{"path": path})
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.assertMutable(r, path, cred); err != nil {
		s.observe(r, models.ActivityTool, "vault.write", start, err, map[string]any{"path": path})
		writeAccessError(w, err)
		return
	}
	accessDecisionsTotal.WithLabelValues("allowed").Inc()

	if err := s.vault.Write(r.Context(), path, []byte(req.Content)); err != nil {
		s.observe(r, models.ActivityTool, "vault.write", start, err, map[string]any{"path": path})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityTool, "vault.write", start, nil, map[string]any{"path": path})
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "bytes": len(req.Content)})
}

// FileAppendHandler handles POST /v1/vault/files/*path.
func (s *Server) FileAppendHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.ContentMutation) {
		return
	}
	path := chi.URLParam(r, "*")

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.observe(r, models.ActivityError, "vault.append", start, err, map[string]any{"path": path})
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.assertMutable(r, path, cred); err != nil {
		s.observe(r, models.ActivityTool, "vault.append", start, err, map[string]any{"path": path})
		writeAccessError(w, err)
		return
	}
	accessDecisionsTotal.WithLabelValues("allowed").Inc()

	if err := s.vault.Append(r.Context(), path, []byte(req.Content)); err != nil {
		s.observe(r, models.ActivityTool, "vault.append", start, err, map[string]any{"path": path})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityTool, "vault.append", start, nil, map[string]any{"path": path})
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

// FileDeleteHandler handles DELETE /v1/vault/files/*path.
func (s *Server) FileDeleteHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.ContentMutation) {
		return
	}
	path := chi.URLParam(r, "*")

	if !s.vault.Exists(r.Context(), path) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.gate.AssertWritable(r.Context(), path, cred); err != nil {
		s.observe(r, models.ActivityTool, "vault.delete", start, err, map[string]any{"path": path})
		writeAccessError(w, err)
		return
	}
	accessDecisionsTotal.WithLabelValues("allowed").Inc()

	if err := s.vault.Delete(r.Context(), path); err != nil {
		s.observe(r, models.ActivityTool, "vault.delete", start, err, map[string]any{"path": path})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityTool, "vault.delete", start, nil, map[string]any{"path": path})
	w.WriteHeader(http.StatusNoContent)
}

// ListHandler handles GET /v1/vault/list/*dir. The listing itself requires
// the directory to be permitted; each entry is then filtered by its own
// access decision so blocked subtrees never show up.
func (s *Server) ListHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.FileAccess) {
		return
	}
	dir := chi.URLParam(r, "*")

	if !access.EvaluateDirectory(dir, cred.Policy) {
		accessDecisionsTotal.WithLabelValues("denied").Inc()
		s.observe(r, models.ActivityResource, "vault.list", start, &access.AccessDeniedError{Path: dir}, map[string]any{"dir": dir})
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	entries, err := s.vault.List(r.Context(), dir)
	if err != nil {
		s.observe(r, models.ActivityResource, "vault.list", start, err, map[string]any{"dir": dir})
		if errors.Is(err, vault.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	visible := make([]models.NoteInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			if access.EvaluateDirectory(e.Path, cred.Policy) {
				visible = append(visible, e)
			}
			continue
		}
		if s.gate.IsReadable(r.Context(), e.Path, cred) {
			visible = append(visible, e)
		}
	}

	s.observe(r, models.ActivityResource, "vault.list", start, nil, map[string]any{"dir": dir})
	writeJSON(w, http.StatusOK, map[string]any{"entries": visible})
}

// assertMutable is the write-side access decision for a path that may not
// exist yet.
func (s *Server) assertMutable(r *http.Request, path string, cred *models.Credential) error {
	if s.vault.Exists(r.Context(), path) {
		return s.gate.AssertWritable(r.Context(), path, cred)
	}
	if !s.gate.IsDirectoryWritable(access.ParentDir(path), cred) {
		return &access.AccessDeniedError{Path: path}
	}
	return nil
}
