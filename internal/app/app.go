package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/aliuyar1234/holidaytree/internal/auth"
	"github.com/aliuyar1234/holidaytree/internal/blob"
	"github.com/aliuyar1234/holidaytree/internal/config"
	"github.com/aliuyar1234/holidaytree/internal/db"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/slack"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/aliuyar1234/holidaytree/internal/store/postgres"
	"github.com/aliuyar1234/holidaytree/internal/store/sqlite"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/aliuyar1234/holidaytree/internal/web"
	"github.com/aliuyar1234/holidaytree/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config *config.Config
	Store  store.Store
	Blobs  *blob.FSStore
	Broker live.Broker
	Router http.Handler

	server *http.Server
}

// Services are the domain components the router dispatches to.
type Services struct {
	Invites   *invites.Service
	Writer    *submissions.Writer
	Moderator *submissions.Moderator
	Intake    *submissions.Intake
	Auth      *auth.Authenticator
	Limits    submissions.UploadLimits
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing holidaytree application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	log.Info().Msg("Initializing templates")
	templates, err := fs.Sub(ui.FS, "templates")
	if err != nil {
		return nil, err
	}
	if err := web.InitTemplates(templates); err != nil {
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := openBroker(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	blobs, err := blob.NewFSStore(cfg.BlobDir, "/media")
	if err != nil {
		_ = broker.Close()
		_ = st.Close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	a := &App{
		Config: cfg,
		Store:  st,
		Blobs:  blobs,
		Broker: broker,
	}
	a.Router = NewRouter(cfg, a.Store, a.Blobs, a.Broker, a.services())

	log.Info().Msg("Application initialized successfully")
	return a, nil
}

func (a *App) services() Services {
	cfg := a.Config
	auditor := audit.NewWriter(a.Store)

	invSvc := invites.NewService(a.Store, a.Broker, auditor, invites.Options{
		MaxUses: cfg.InviteMaxUses,
		TTL:     time.Duration(cfg.InviteTTLDays) * 24 * time.Hour,
		BaseURL: cfg.BaseURL,
	})

	var notifier submissions.Notifier
	if client := slack.NewClient(cfg.SlackWebhookURL, cfg.BaseURL, cfg.SlackTimeoutMS); client.Enabled() {
		notifier = client
		log.Info().Msg("Slack notifications enabled")
	}
	writer := submissions.NewWriter(a.Store, a.Blobs, a.Broker, auditor, notifier)

	return Services{
		Invites:   invSvc,
		Writer:    writer,
		Moderator: submissions.NewModerator(a.Store, a.Broker, auditor),
		Intake:    submissions.NewIntake(invSvc, writer),
		Auth:      auth.NewAuthenticator(cfg.AdminPasswordHash, cfg.JWTSecret, cfg.SessionDays, !cfg.IsDev(), auditor),
		Limits:    submissions.NewUploadLimits(cfg.MaxUploadBytes),
	}
}

// OpenStore connects the configured document store. Postgres migrations run automatically in
// dev only; in prod they are applied with `holidaytree admin migrate`.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		log.Info().Msg("Connecting to database...")
		pool, err := db.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().Msg("Database connection established")

		if cfg.IsDev() {
			log.Info().Msg("Development mode: running migrations automatically")
			if err := db.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		} else {
			log.Info().Msg("Production mode: migrations must be run manually")
		}
		return postgres.New(pool), nil

	case config.DriverSQLite:
		log.Info().Str("path", cfg.SQLitePath).Msg("Opening SQLite store")
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		st, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openBroker(ctx context.Context, cfg *config.Config) (live.Broker, error) {
	if cfg.RedisURL == "" {
		return live.NewLocalBroker(), nil
	}
	b, err := live.NewRedisBroker(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Live updates fan out through Redis")
	return b, nil
}

// Start starts the HTTP server and blocks until it stops. http.ErrServerClosed is not an error.
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx is done.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	log.Info().Msg("Shutting down HTTP server")
	return a.server.Shutdown(ctx)
}

// Close releases the broker and the store.
func (a *App) Close() {
	log.Info().Msg("Shutting down application")
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close live broker")
		}
	}
	if a.Store != nil {
		log.Info().Msg("Closing store")
		if err := a.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

// setupLogger configures the global logger. Dev gets pretty console output, prod writes JSON.
func setupLogger(level string, pretty bool) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
