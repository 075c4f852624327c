package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"longrun/features/job"
	"longrun/features/stats"
	"longrun/internal/config"
	"longrun/internal/jobs"
	"longrun/internal/middleware"
	"longrun/internal/registry"
	"longrun/internal/worker"
)

type App struct {
	Handler  http.Handler
	Registry *registry.Registry
	Engine   *worker.Engine

	cfg *config.Config
}

// New wires the registry, features, and routes. It does not connect to
// NSQ: the caller decides whether to start consumers, so New stays
// testable with a mock database.
func New(cfg *config.Config, db *sql.DB, taskPub job.TaskPublisher) (*App, error) {
	// Job type registry. All registrations happen here, before any
	// consumer connects.
	reg := registry.New()
	jobs.RegisterAll(reg)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, reg, taskPub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(jobRepo)

	// Execution engine. Started by the caller via worker.StartConsumers.
	engine := worker.NewEngine(jobRepo, reg)

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /jobs", middleware.CorrelationID(http.HandlerFunc(jobHandler.Submit)))
	mux.Handle("GET /jobs", middleware.CorrelationID(http.HandlerFunc(jobHandler.List)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(http.HandlerFunc(jobHandler.Get)))
	mux.Handle("GET /job-types", middleware.CorrelationID(http.HandlerFunc(jobHandler.ListTypes)))
	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:  mux,
		Registry: reg,
		Engine:   engine,
		cfg:      cfg,
	}, nil
}

// Run serves the HTTP API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
