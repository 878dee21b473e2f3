package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_server/config"
	"crm_server/internal/bootstrap"
	"crm_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
	startupTimeout  = 30 * time.Second
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "crm-server",
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	deps, cleanup, err := bootstrap.NewDependencies(startCtx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(cfg, deps)
	case "worker":
		runWorker(cfg, deps)
	case "all":
		w := bootstrap.NewWorker(cfg, deps)
		go func() {
			if err := w.Start(); err != nil {
				logger.Error("Worker stopped: %v", err)
			}
		}()
		defer w.Stop()
		runAPI(cfg, deps)
	case "run":
		if err := runOnce(deps); err != nil {
			cleanup()
			logger.Fatal("Pipeline run failed: %v", err)
		}
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(cfg *config.Config, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(cfg, deps)

	// Graceful shutdown with timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
			return
		}
		logger.Info("API server shut down gracefully")
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(cfg *config.Config, deps *bootstrap.Dependencies) {
	w := bootstrap.NewWorker(cfg, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

		done := make(chan struct{})
		go func() {
			w.Stop()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("Worker shut down gracefully")
		case <-time.After(shutdownTimeout):
			logger.Warn("Worker shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	logger.Info("Starting worker...")
	if err := w.Start(); err != nil {
		logger.Fatal("Worker failed: %v", err)
	}
}

// runOnce executes a single pipeline run and prints the lead report.
func runOnce(deps *bootstrap.Dependencies) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := deps.Pipeline.Run(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"run_id":       snap.RunID,
		"messages":     len(snap.Messages),
		"clients":      len(snap.ClientWork),
		"distribution": snap.Distribution,
		"lead":         snap.Lead,
		"report":       snap.Report,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}
