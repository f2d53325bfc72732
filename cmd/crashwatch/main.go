package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
	"github.com/vuchq/crashwatch/internal/control"
	"github.com/vuchq/crashwatch/internal/core/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	catchupPages := flag.Int("catchup-pages", 0, "Run a one-shot historical fetch of N pages and exit")
	reconcile := flag.Bool("reconcile", true, "Enable gap detection and reconciliation via Redis")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// .env is optional; the config file expands whatever is set.
	_ = godotenv.Load()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	// Initialize stylelog with tint.Options for level control
	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String())

	// Transform config
	controlCfg := control.Config{
		Port:             cfg.Server.Port,
		Database:         cfg.Database,
		Redis:            cfg.Redis,
		Provider:         cfg.Provider,
		Oracle:           cfg.Oracle,
		Monitor:          cfg.Monitor,
		Catchup:          cfg.Catchup,
		Reconcile:        cfg.Reconcile,
		ReconcileEnabled: *reconcile,
	}

	app, err := control.New(controlCfg)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	// Setup Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-shot catch-up mode: fetch, report, exit.
	if *catchupPages > 0 {
		counts, err := app.Catchup(ctx, *catchupPages)
		if err != nil {
			slog.Error("Catch-up failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Catch-up complete",
			"fetched", counts.Fetched, "saved", counts.Saved,
			"skipped", counts.Skipped, "failed_pages", counts.Failed)
		return
	}

	// Handle OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start App
	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}

	// Wait for Signal
	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	// Graceful Shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Engine stopped gracefully")
}
