package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/videoflix/streamcore/internal/catalog"
	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/internal/database"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/metrics"
	"github.com/videoflix/streamcore/internal/queue"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/internal/tracing"
	"github.com/videoflix/streamcore/internal/transcoder"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	_, closer, err := tracing.InitTracer("streamcore-worker", cfg.Tracing.JaegerEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	jobStore := database.NewJobRepository(db)
	videoStore := database.NewVideoRepository(db)
	renditionStore := database.NewRenditionRepository(db)

	blobs, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	broker, err := queue.NewAMQPBroker(cfg.Queue)
	if err != nil {
		log.Fatalf("failed to connect to broker: %v", err)
	}
	defer broker.Close()

	cat := catalog.New(renditionStore, blobs, cfg.Profiles, log)
	if err := cat.Load(context.Background()); err != nil {
		log.Fatalf("failed to load rendition catalog: %v", err)
	}

	svc := transcoder.NewService(cfg.Transcoder, blobs, videoStore, cfg.Profiles, log)
	runner := queue.NewRunner(jobStore, broker, svc, cat, cfg.Pipeline, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runner.Start(ctx); err != nil {
		log.Fatalf("failed to start runner: %v", err)
	}

	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.ErrorWithErr("metrics server failed", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithErr("metrics server shutdown failed", err)
	}
	log.Info("worker stopped")
}
