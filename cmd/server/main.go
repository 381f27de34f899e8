package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/vaultgate/internal/api"
	"github.com/org/vaultgate/internal/credential"
	"github.com/org/vaultgate/internal/storage"
	"github.com/org/vaultgate/internal/vault"
	"github.com/org/vaultgate/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr      string `yaml:"listen_addr"`
	TLSCertFile     string `yaml:"tls_cert"`
	TLSKeyFile      string `yaml:"tls_key"`
	VaultDir        string `yaml:"vault_dir"`
	DBUrl           string `yaml:"db_url"`
	SettingsFile    string `yaml:"settings_file"`
	MigrationsDir   string `yaml:"migrations_dir"`
	InboxNote       string `yaml:"inbox_note"`
	DailyNoteDir    string `yaml:"daily_note_dir"`
	DailyNoteFormat string `yaml:"daily_note_format"`
	MaxActions      int    `yaml:"max_actions_per_credential"`
	MaxTracked      int    `yaml:"max_tracked_credentials"`
	RateLimitRPS    int    `yaml:"rate_limit_rps"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
	LogLevel        string `yaml:"log_level"`
}

func main() {
	bootstrap := flag.Bool("bootstrap", false, "issue a full-capability credential when none exist and print its secret once")
	flag.Parse()

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("VAULTGATE_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":27124",
		SettingsFile:  "vaultgate.yaml",
		MigrationsDir: "migrations",
		LogLevel:      "info",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("VAULTGATE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("VAULTGATE_VAULT_DIR"); v != "" {
		cfg.VaultDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if os.Getenv("VAULTGATE_BOOTSTRAP") == "1" {
		*bootstrap = true
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.VaultDir == "" {
		log.Fatal().Msg("vault_dir must be configured (or VAULTGATE_VAULT_DIR env var)")
	}

	ctx := context.Background()

	// Settings persistence: postgres when configured, YAML file otherwise
	var backend storage.SettingsBackend
	if cfg.DBUrl != "" {
		pg, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
		backend = pg
	} else {
		backend = storage.NewFileBackend(cfg.SettingsFile)
	}
	defer backend.Close()

	initial, err := backend.LoadCredentials(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load credentials")
	}
	creds := credential.NewStore(initial, backend.SaveCredentials)
	log.Info().Int("credentials", creds.Len()).Msg("credential store loaded")

	v, err := vault.Open(cfg.VaultDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open vault")
	}

	if creds.Len() == 0 {
		if *bootstrap {
			c, err := creds.Issue(ctx, "bootstrap", models.AllCapabilities())
			if err != nil {
				log.Fatal().Err(err).Msg("failed to issue bootstrap credential")
			}
			// The secret is not recoverable later; print it exactly once.
			log.Info().Str("id", c.ID).Msg("bootstrap credential issued")
			os.Stdout.WriteString("Bootstrap credential secret (shown once): " + c.Secret + "\n")
		} else {
			log.Warn().Msg("no credentials issued - every request will be rejected until one is created")
		}
	}

	srv := api.NewServer(creds, v, api.Config{
		ListenAddr:              cfg.ListenAddr,
		TLSCertFile:             cfg.TLSCertFile,
		TLSKeyFile:              cfg.TLSKeyFile,
		InboxNote:               cfg.InboxNote,
		DailyNoteDir:            cfg.DailyNoteDir,
		DailyNoteFormat:         cfg.DailyNoteFormat,
		MaxActionsPerCredential: cfg.MaxActions,
		MaxTrackedCredentials:   cfg.MaxTracked,
		RateLimitRPS:            cfg.RateLimitRPS,
		RateLimitBurst:          cfg.RateLimitBurst,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Str("vault", cfg.VaultDir).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
