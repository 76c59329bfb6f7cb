package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/phosphosite-scraper/internal/api"
	"github.com/maltedev/phosphosite-scraper/internal/app"
	"github.com/maltedev/phosphosite-scraper/internal/config"
	"github.com/maltedev/phosphosite-scraper/internal/jobs"
	"github.com/maltedev/phosphosite-scraper/internal/output"
	"github.com/maltedev/phosphosite-scraper/internal/queue"
	"github.com/maltedev/phosphosite-scraper/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run serves until a shutdown signal and returns the exit code. Deferred
// cleanup runs on every path.
func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	// Setup logging
	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	// Start relay for outbox processing
	if a.Relay != nil {
		go func() {
			if err := a.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	// Every run also lands on disk like a CLI run
	a.Driver.
		AddObserver(output.NewCSVWriter(cfg.Output.Dir, logger)).
		AddObserver(output.NewRunLog(cfg.Output.Dir, logger))

	runQueue := queue.NewInMemoryQueue()
	jobManager := jobs.NewManager(a.Driver, runQueue, logger)
	a.Driver.AddObserver(jobManager)

	// Start job worker
	workerDone := make(chan struct{})
	go func() {
		jobManager.StartWorker(ctx)
		close(workerDone)
	}()

	handlers := api.NewHandlers(jobManager, logger).WithMaxKeys(cfg.Server.MaxKeys)
	if a.Relay != nil {
		handlers.WithOutboxHealth(a.Relay)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		runQueue.Close()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		runQueue.Close()
		cancel()
		<-workerDone
		return 1
	}

	<-workerDone
	logger.Info("server stopped")
	return 0
}
