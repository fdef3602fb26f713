package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/logging"
	"github.com/coursemedia/captionburn/internal/metrics"
	"github.com/coursemedia/captionburn/internal/middleware"
	"github.com/coursemedia/captionburn/internal/progress"
	"github.com/coursemedia/captionburn/internal/queue"
	"github.com/coursemedia/captionburn/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog := logger.Zerolog()

	middleware.SetJWTSecret(cfg.API.JWTSecret)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				zlog.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to queue")
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to set up dead letter queue")
	}

	// Job status comes from the progress sink worker processes publish to
	status, err := progress.NewRedisSink(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer status.Close()

	api := &API{
		storage: stor,
		queue:   q,
		status:  status,
		logger:  zlog,
	}

	router := setupRouter(api, cfg, zlog)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: router,
	}

	go func() {
		zlog.Info().Int("port", cfg.API.Port).Msg("API server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	zlog.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Forced shutdown")
	}
}
