package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"longrun/internal/app"
	"longrun/internal/config"
	"longrun/internal/logger"
	"longrun/internal/worker"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.Producer.Stop()

	a, err := app.New(cfg, deps.DB, deps.Producer)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	var consumers *worker.Consumers
	if cfg.EnableWorker {
		consumers, err = worker.StartConsumers(cfg, a.Engine)
		if err != nil {
			slog.Error("failed to start queue consumers", "error", err)
			os.Exit(1)
		}
	}

	if cfg.EnableAPI {
		if err := a.Run(ctx); err != nil {
			slog.Error("server failed", "error", err)
		}
	} else {
		<-ctx.Done()
	}

	// Drain consumers before exiting so in-flight attempts persist
	// their outcome.
	if consumers != nil {
		consumers.Stop()
	}
}
