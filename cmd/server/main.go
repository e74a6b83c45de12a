package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/medx/lab-extractor/internal/config"
	"github.com/medx/lab-extractor/internal/database"
	"github.com/medx/lab-extractor/internal/extract"
	"github.com/medx/lab-extractor/internal/logging"
	"github.com/medx/lab-extractor/internal/middleware"
	"github.com/medx/lab-extractor/internal/reports"
)

type Application struct {
	config  *config.Config
	db      *sql.DB
	logger  *slog.Logger
	extract *extract.Handler
	reports *reports.Handler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Finalize(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(&cfg.Logging)

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	app, err := newApplication(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      app.routes(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		IdleTimeout:  cfg.Server.IdleTimeoutDuration(),
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
		defer cancel()

		shutdownError <- srv.Shutdown(ctx)
	}()

	logger.Info("starting server", "addr", srv.Addr, "models", cfg.Gemini.Models)

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	err = <-shutdownError
	if err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newApplication(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*Application, error) {
	capability, err := extract.NewGemini(&cfg.Gemini, logger)
	if err != nil {
		return nil, err
	}

	store := reports.New(db, logger)

	pipeline := extract.NewPipeline(
		capability,
		store,
		capability.Schema(),
		logger,
		extract.OptionsFromConfig(&cfg.Gemini),
	)

	return &Application{
		config:  cfg,
		db:      db,
		logger:  logger,
		extract: extract.NewHandler(pipeline, &cfg.Uploads, logger),
		reports: reports.NewHandler(store, logger),
	}, nil
}

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/extract", app.extract.Extract)
	mux.HandleFunc("GET /api/history/{id}", app.reports.History)

	return middleware.CORS(&app.config.CORS)(mux)
}
