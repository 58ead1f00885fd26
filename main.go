package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inbox_server/config"
	"inbox_server/internal/bootstrap"
	"inbox_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "inbox-" + *mode,
		Console: cfg.LogFormat == "console",
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	runMode, err := bootstrap.ParseMode(*mode)
	if err != nil {
		logger.Fatal("Invalid mode: %v", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(context.Background(), cfg, runMode)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}

	var app *fiber.App
	var worker *bootstrap.Worker

	switch runMode {
	case bootstrap.ModeAPI:
		app = bootstrap.NewAPI(deps)
	case bootstrap.ModeWorker:
		worker = bootstrap.NewWorker(deps)
	case bootstrap.ModeAll:
		app = bootstrap.NewAPI(deps)
		worker = bootstrap.NewWorker(deps)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if worker != nil {
		go worker.Start()
	}

	if app != nil {
		go func() {
			addr := ":" + cfg.Port
			logger.Info("Starting API server on %s", addr)
			if err := app.Listen(addr); err != nil {
				logger.Error("API server stopped: %v", err)
				sigChan <- syscall.SIGTERM
			}
		}()
	}

	<-sigChan
	logger.Info("Shutting down (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		if app != nil {
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				logger.Error("Error shutting down API: %v", err)
			}
		}
		if worker != nil {
			worker.Stop()
		}
		cleanup()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Shut down gracefully")
	case <-time.After(shutdownTimeout + 5*time.Second):
		logger.Warn("Shutdown timed out, forcing exit")
		os.Exit(1)
	}
}
