package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/videoflix/streamcore/internal/cache"
	"github.com/videoflix/streamcore/internal/catalog"
	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/internal/database"
	"github.com/videoflix/streamcore/internal/delivery"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/middleware"
	"github.com/videoflix/streamcore/internal/queue"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/internal/tracing"
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

	_, closer, err := tracing.InitTracer("streamcore-api", cfg.Tracing.JaegerEndpoint)
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

	jobCache, err := cache.New(cfg.Redis)
	if err != nil {
		// The cache is an optimization; the API serves from the store
		// without it.
		log.ErrorWithErr("job status cache unavailable, serving uncached", err)
		jobCache = nil
	} else {
		defer jobCache.Close()
	}

	cat := catalog.New(renditionStore, blobs, cfg.Profiles, log)
	if err := cat.Load(context.Background()); err != nil {
		log.Fatalf("failed to load rendition catalog: %v", err)
	}

	q := queue.New(jobStore, videoStore, broker, cfg.Profiles, log)
	api := delivery.New(q, cat, blobs, videoStore, jobCache, middleware.AllowAll{}, log)

	opts := delivery.RouterOptions{JWTSecret: cfg.Auth.JWTSecret}
	if cfg.Server.RateLimitRPS > 0 {
		opts.Limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}
	router := delivery.Router(api, log, opts)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Info("server stopped")
}
