package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/bus"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/directory"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/rpc"
	"github.com/taskhive/taskhive/internal/service"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/store/migrations"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// application holds the wired components for the lifetime of the process.
type application struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	transport *bus.InProc
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(db, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	app := &application{
		cfg:       cfg,
		logger:    log,
		db:        db,
		transport: bus.NewInProc(log),
	}
	router, err := app.wire()
	if err != nil {
		return err
	}

	return app.serveHTTP(ctx, router)
}

// wire builds the component graph: stores, directory clients, services, and
// the transport-facing request handlers, then returns the ops router.
func (app *application) wire() (http.Handler, error) {
	tasks := store.NewPostgresTaskStore(app.db)
	projects := store.NewPostgresProjectStore(app.db)

	targets := directory.DefaultTargets()
	targets[directory.ServiceUser] = app.cfg.Directory.UserTarget

	users := directory.NewBusUsers(
		app.transport, targets, app.cfg.Directory.RequestTimeout, app.logger)

	taskSvc, err := service.NewTaskService(tasks, users, app.transport, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build task service: %w", err)
	}
	projectSvc, err := service.NewProjectService(projects, users, app.transport, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build project service: %w", err)
	}

	verifier, err := auth.NewVerifier(app.cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to build token verifier: %w", err)
	}

	handlers, err := rpc.NewHandlers(
		taskSvc, projectSvc, verifier, service.UserRoles(users), app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build rpc handlers: %w", err)
	}
	handlers.Register(app.transport, rpc.DefaultTarget)

	return app.setupRouter(), nil
}

// setupRouter builds the operational HTTP surface. Domain mutations arrive
// over the message transport, not HTTP; this router only answers liveness
// and readiness probes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.db.PingContext(ctx); err != nil {
			app.logger.Error("readiness probe failed", "error", err)
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// serveHTTP starts the HTTP server and blocks until a shutdown signal or
// context cancellation, then drains within the configured timeout.
func (app *application) serveHTTP(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler: router,
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.logger.Info("starting server", "port", app.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case <-shutdownCh:
		app.logger.Info("shutdown signal received")
	case <-serverCtx.Done():
		app.logger.Info("server context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), app.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("server shutdown completed")
	return nil
}

// openDatabase establishes the database connection and configures the pool.
func openDatabase(cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}
