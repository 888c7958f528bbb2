package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/kapu/reel-views-bot/internal/app"
	"github.com/kapu/reel-views-bot/internal/config"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

const (
	version        = "1.0.0"
	panicExitDelay = 5 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Reel views bot starting...",
		zap.String("version", version),
		zap.String("log_level", cfg.Logging.Level),
		zap.Bool("enrichment", cfg.EnrichmentEnabled()),
		zap.Bool("drip", cfg.Drip.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble application services", zap.Error(err))
		os.Exit(1)
	}
	defer container.Close()

	reelBot, err := container.NewBot()
	if err != nil {
		logger.Error("Failed to initialize bot", zap.Error(err))
		os.Exit(1)
	}

	// Create context with cancellation for runtime lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Registered after cancel so the health server is still serving during the delay
	defer exitOnPanic(logger)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := reelBot.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	logger.Info("Bot started, waiting for signals...")

	// Wait for termination signal or error
	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Bot error", zap.Error(err))
		exitCode = 1
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully...")
	cancel()

	// Give in-flight commands time to finish their replies
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := reelBot.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	if exitCode != 0 {
		container.Close()
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// exitOnPanic logs a panic that reached main and exits after panicExitDelay.
func exitOnPanic(logger *zap.Logger) {
	rec := recover()
	if rec == nil {
		return
	}
	logger.Error("Unrecovered panic, exiting",
		zap.Any("panic", rec),
		zap.ByteString("stack", debug.Stack()),
		zap.Duration("delay", panicExitDelay),
	)
	_ = logger.Sync()
	time.Sleep(panicExitDelay)
	os.Exit(1)
}
