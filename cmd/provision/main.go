package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/internal/provisioner"
	"github.com/appforge/provision/pkg/logger"
)

// osExit is a variable to allow mocking os.Exit in tests
var osExit = os.Exit

// For testing purposes - allows us to mock the signal channel
var signalNotify = signal.Notify

// runProvision contains the core provisioning logic, extracted for testability
func runProvision(cfg *config.Config, appLogger logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupt terminates the run; every operation is idempotent, so a
	// later run picks up where this one stopped.
	interrupt := make(chan os.Signal, 1)
	signalNotify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-interrupt
		appLogger.WithField("signal", sig.String()).Warn("Interrupt received, stopping")
		cancel()
	}()

	report, err := provisioner.New(cfg, appLogger).Run(ctx)
	if err != nil {
		return err
	}

	if !report.Succeeded() {
		for _, step := range report.FailedSteps() {
			appLogger.WithField("step", step.Name).WithField("error", step.Err.Error()).Warn("Step failed")
		}
	}

	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger with configured log level
	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)
	appLogger.Info(fmt.Sprintf("Appforge database provisioner v%s targeting %s:%d", cfg.Version, cfg.Database.Host, cfg.Database.Port))

	if err := runProvision(cfg, appLogger); err != nil {
		appLogger.WithField("error", err.Error()).Error("Provisioning failed")
		osExit(1)
	}
}
