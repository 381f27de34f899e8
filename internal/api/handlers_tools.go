package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/org/vaultgate/pkg/models"
)

const maxSearchHits = 200

// SearchHandler handles GET /v1/search?q=. It scans every Markdown file the
// credential may read; blocked files are skipped silently rather than
// reported, for the same reason reads answer 404.
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Search) {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	var hits []models.SearchHit
	err := s.vault.WalkMarkdown(r.Context(), func(rel string) error {
		if len(hits) >= maxSearchHits {
			return nil
		}
		if !s.gate.IsReadable(r.Context(), rel, cred) {
			return nil
		}
		data, err := s.vault.Read(r.Context(), rel)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(strings.ToLower(line), strings.ToLower(query)) {
				hits = append(hits, models.SearchHit{
					Path:    rel,
					Line:    i + 1,
					Snippet: strings.TrimSpace(line),
				})
				if len(hits) >= maxSearchHits {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		s.observe(r, models.ActivityTool, "search", start, err, map[string]any{"query": query})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityTool, "search", start, nil, map[string]any{"query": query, "hits": len(hits)})
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// TasksHandler handles GET /v1/tasks?status=open|done. It extracts Markdown
// checkbox items from readable files.
func (s *Server) TasksHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Tasks) {
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && status != "open" && status != "done" {
		writeError(w, http.StatusBadRequest, "status must be open or done")
		return
	}

	var tasks []models.TaskItem
	err := s.vault.WalkMarkdown(r.Context(), func(rel string) error {
		if !s.gate.IsReadable(r.Context(), rel, cred) {
			return nil
		}
		data, err := s.vault.Read(r.Context(), rel)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			text, done, ok := parseTaskLine(line)
			if !ok {
				continue
			}
			if status == "open" && done || status == "done" && !done {
				continue
			}
			tasks = append(tasks, models.TaskItem{Path: rel, Line: i + 1, Text: text, Done: done})
		}
		return nil
	})
	if err != nil {
		s.observe(r, models.ActivityTool, "tasks", start, err, nil)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityTool, "tasks", start, nil, map[string]any{"count": len(tasks)})
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// parseTaskLine recognizes "- [ ] text" and "- [x] text" list items.
func parseTaskLine(line string) (text string, done bool, ok bool) {
	t := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(t, "- [ ] "):
		return strings.TrimSpace(t[6:]), false, true
	case strings.HasPrefix(t, "- [x] "), strings.HasPrefix(t, "- [X] "):
		return strings.TrimSpace(t[6:]), true, true
	}
	return "", false, false
}

// CaptureHandler handles POST /v1/capture: appends a timestamped line to the
// configured inbox note.
func (s *Server) CaptureHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Capture) {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	path := s.cfg.InboxNote
	if err := s.assertMutable(r, path, cred); err != nil {
		s.observe(r, models.ActivityTool, "capture", start, err, map[string]any{"path": path})
		writeAccessError(w, err)
		return
	}

	line := fmt.Sprintf("- %s %s\n", time.Now().UTC().Format("2006-01-02 15:04"), strings.TrimSpace(req.Text))
	if err := s.vault.Append(r.Context(), path, []byte(line)); err != nil {
		s.observe(r, models.ActivityTool, "capture", start, err, map[string]any{"path": path})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.observe(r, models.ActivityTool, "capture", start, nil, map[string]any{"path": path})
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

// DailyNoteHandler handles GET /v1/periodic/daily: resolves today's note
// from the configured directory and date format and returns its content.
func (s *Server) DailyNoteHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cred := credentialFromCtx(r.Context())
	if !requireCap(w, cred.Caps.Periodic) {
		return
	}

	name := time.Now().UTC().Format(s.cfg.DailyNoteFormat) + ".md"
	path := name
	if s.cfg.DailyNoteDir != "" {
		path = s.cfg.DailyNoteDir + "/" + name
	}

	if !s.gate.IsReadable(r.Context(), path, cred) {
		s.observe(r, models.ActivityResource, "periodic.daily", start, fmt.Errorf("access denied: %s", path), map[string]any{"path": path})
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	data, err := s.vault.Read(r.Context(), path)
	if err != nil {
		s.observe(r, models.ActivityResource, "periodic.daily", start, err, map[string]any{"path": path})
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.observe(r, models.ActivityResource, "periodic.daily", start, nil, map[string]any{"path": path})
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "content": string(data)})
}
