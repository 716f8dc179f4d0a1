package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/nuntius-io/nuntius/config"
	"github.com/nuntius-io/nuntius/internal/app"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// osExit is a variable to allow mocking os.Exit in tests
var osExit = os.Exit

func runWorker(cfg *config.Config, appLogger logger.Logger) error {
	appInstance := app.NewApp(cfg, app.WithLogger(appLogger))
	if err := appInstance.Initialize(); err != nil {
		appLogger.WithField("error", err.Error()).Error("Failed to initialize application")
		return err
	}

	// TERM or INT cancels the context; the supervisor drains its queue and
	// returns once every sender has exited.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := appInstance.NewSupervisor()
	if err := supervisor.Run(ctx); err != nil {
		appLogger.WithField("error", err.Error()).Error("Supervisor error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := appInstance.Shutdown(shutdownCtx); err != nil {
		appLogger.WithField("error", err.Error()).Error("Error during shutdown")
		return err
	}
	appLogger.Info("Worker shut down gracefully")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)
	appLogger.Info(fmt.Sprintf("Starting delivery worker, backend %s", cfg.Sending.EmailBackend))

	if err := runWorker(cfg, appLogger); err != nil {
		osExit(1)
	}
}
