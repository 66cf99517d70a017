package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haloedge/authcore/internal/observability"
)

// waitForShutdown blocks until SIGINT/SIGTERM, then tears every
// long-lived component down in dependency order: stop accepting new
// work (watcher, metrics server) before closing the connection the
// pipeline itself depends on (shared storage), then the tracer.
func waitForShutdown(app *application, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil {
			logger.Error("failed to stop issuer watcher", observability.Error(err))
		}
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			logger.Error("failed to close shared storage", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("authgated stopped")
}
