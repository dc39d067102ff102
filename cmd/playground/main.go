package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WillKirkmanM/playground/internal/config"
	"github.com/WillKirkmanM/playground/internal/logging"
	"github.com/WillKirkmanM/playground/internal/server"
	"github.com/WillKirkmanM/playground/internal/tracing"
)

// main initializes and starts the playground server
// This function orchestrates the entire application lifecycle including:
// - Configuration loading from the environment and an optional file
// - Tracing and logger initialisation
// - Signal handling for clean termination
func main() {
	var configPath = flag.String("config", "", "Path to optional configuration file")
	flag.Parse()

	// Load configuration using singleton pattern
	// Environment variables always win over the optional YAML overlay
	if err := config.LoadConfig(*configPath); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := config.GetInstance()

	log := logging.NewLogger(cfg.Tracing.ServiceName, cfg.Logging)

	// Validation never aborts startup; clamped values and a missing
	// runner binary surface here instead
	for _, warning := range cfg.Warnings {
		log.Warn(context.Background(), warning)
	}

	shutdownTracing, err := tracing.InitTracing(cfg.Tracing)
	if err != nil {
		log.Warn(context.Background(), "tracing disabled", slog.String("error", err.Error()))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	srv := server.NewServer(cfg, log)

	// Setup graceful shutdown using context cancellation
	// This pattern ensures all goroutines are properly terminated
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel for OS signals - enables graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in separate goroutine to prevent blocking main thread
	go func() {
		log.Info(ctx, "starting playground server",
			slog.String("addr", cfg.ListenAddr()),
			slog.Bool("debug", cfg.Server.DebugMode),
		)
		if err := srv.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal(ctx, "server failed", err)
		}
	}()

	// Block until termination signal is received
	<-sigChan
	log.Info(context.Background(), "received termination signal, shutting down gracefully")

	cancel()

	// Allow time for in-flight executions to drain before forced exit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(context.Background(), "error during shutdown", err)
	}

	log.Info(context.Background(), "playground server stopped")
}
