package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/vaultgate/internal/access"
	"github.com/org/vaultgate/internal/activity"
	"github.com/org/vaultgate/internal/credential"
	"github.com/org/vaultgate/internal/vault"
	"github.com/org/vaultgate/pkg/models"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string

	// InboxNote receives quick-capture appends.
	InboxNote string
	// DailyNoteDir and DailyNoteFormat resolve the scheduled daily note,
	// e.g. "daily" + "2006-01-02" → daily/2026-08-23.md.
	DailyNoteDir    string
	DailyNoteFormat string

	MaxActionsPerCredential int
	MaxTrackedCredentials   int

	// RateLimitRPS enables per-address rate limiting when positive.
	RateLimitRPS   int
	RateLimitBurst int
}

// Server is the API host: it owns the authentication gate, the authorized
// access facade, and the activity tracker, all constructed once and passed
// by reference.
type Server struct {
	creds   *credential.Store
	gate    *access.Gate
	tracker *activity.Tracker
	vault   *vault.Vault
	cfg     Config
	httpSrv *http.Server
}

// NewServer creates a fully wired Server over the given credential store and
// vault.
func NewServer(creds *credential.Store, v *vault.Vault, cfg Config) *Server {
	if cfg.InboxNote == "" {
		cfg.InboxNote = "inbox.md"
	}
	if cfg.DailyNoteFormat == "" {
		cfg.DailyNoteFormat = "2006-01-02"
	}
	credentialsTotal.Set(float64(creds.Len()))
	return &Server{
		creds:   creds,
		gate:    access.NewGate(v),
		tracker: activity.NewTracker(cfg.MaxActionsPerCredential, cfg.MaxTrackedCredentials),
		vault:   v,
		cfg:     cfg,
	}
}

// Tracker exposes the activity tracker (used by the CLI surface and tests).
func (s *Server) Tracker() *activity.Tracker {
	return s.tracker
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	if s.cfg.RateLimitRPS > 0 {
		burst := s.cfg.RateLimitBurst
		if burst <= 0 {
			burst = s.cfg.RateLimitRPS
		}
		r.Use(newRateLimiter(s.cfg.RateLimitRPS, burst).middleware)
	}

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.creds))

		// Vault files
		r.Get("/v1/vault/files/*", s.FileGetHandler)
		r.Put("/v1/vault/files/*", s.FilePutHandler)
		r.Post("/v1/vault/files/*", s.FileAppendHandler)
		r.Delete("/v1/vault/files/*", s.FileDeleteHandler)
		r.Get("/v1/vault/list/*", s.ListHandler)
		r.Get("/v1/vault/list", s.ListHandler)

		// Integrations
		r.Get("/v1/search", s.SearchHandler)
		r.Get("/v1/tasks", s.TasksHandler)
		r.Post("/v1/capture", s.CaptureHandler)
		r.Get("/v1/periodic/daily", s.DailyNoteHandler)

		// Activity
		r.Get("/v1/activity", s.ActivityListHandler)
		r.Get("/v1/activity/{name}", s.ActivityGetHandler)

		// Credential management
		r.Post("/v1/sys/credentials", s.CredentialIssueHandler)
		r.Get("/v1/sys/credentials", s.CredentialListHandler)
		r.Delete("/v1/sys/credentials/{id}", s.CredentialRevokeHandler)
	})

	return r
}

// observe records one activity entry for the request's credential. Called by
// handlers after the access decision; recording is best effort and never
// affects the response.
func (s *Server) observe(r *http.Request, kind models.ActivityKind, op string, start time.Time, opErr error, details map[string]any) {
	cred := credentialFromCtx(r.Context())
	if cred == nil {
		return
	}
	meta := callerMetaFromCtx(r.Context())
	rec := models.ActivityRecord{
		Kind:       kind,
		Operation:  op,
		Timestamp:  time.Now().UTC(),
		Success:    opErr == nil,
		DurationMs: time.Since(start).Milliseconds(),
		Details:    details,
		ClientAddr: meta.Addr,
		UserAgent:  meta.UserAgent,
	}
	if opErr != nil {
		rec.Error = opErr.Error()
	}
	s.tracker.Record(cred.Name, rec)
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
