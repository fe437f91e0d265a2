package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/videoflix/streamcore/internal/catalog"
	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/internal/database"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/queue"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/internal/transcoder"
	"github.com/videoflix/streamcore/pkg/models"
)

// hlsgen transcodes one video from the command line, running the worker
// pipeline in-process against an in-memory broker. Useful for backfills and
// for regenerating renditions without a running worker fleet.
func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		videoID    = flag.String("video-id", "", "video to transcode (required)")
		profile    = flag.String("profile", "", "single profile to generate; empty means the whole ladder")
		overwrite  = flag.Bool("overwrite", false, "replace existing renditions")
	)
	flag.Parse()

	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "hlsgen: -video-id is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The broker stays in-process; job records and renditions still go
	// through the shared store, so a worker fleet sees the results.
	broker := queue.NewMemoryBroker(len(cfg.Profiles) * 2)
	defer broker.Close()

	cat := catalog.New(renditionStore, blobs, cfg.Profiles, log)
	if err := cat.Load(ctx); err != nil {
		log.Fatalf("failed to load rendition catalog: %v", err)
	}

	svc := transcoder.NewService(cfg.Transcoder, blobs, videoStore, cfg.Profiles, log)
	runner := queue.NewRunner(jobStore, broker, svc, cat, cfg.Pipeline, log)
	if err := runner.Start(ctx); err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}

	q := queue.New(jobStore, videoStore, broker, cfg.Profiles, log)

	var jobs []*models.Job
	if *profile == "" {
		jobs, err = q.EnqueueAll(ctx, *videoID, *overwrite)
	} else {
		var job *models.Job
		job, err = q.Enqueue(ctx, *videoID, *profile, *overwrite)
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if err != nil {
		log.Fatalf("failed to enqueue: %v", err)
	}
	if len(jobs) == 0 {
		fmt.Println("nothing to do: all requested renditions already exist")
		return
	}

	if err := wait(ctx, q, jobs); err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("generated %d rendition(s) for video %s\n", len(jobs), *videoID)
}

// wait polls until every job reaches a terminal state.
func wait(ctx context.Context, q *queue.Queue, jobs []*models.Job) error {
	pending := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		pending[j.ID] = true
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var failed []string

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for id := range pending {
			job, err := q.Status(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to poll job %s: %w", id, err)
			}
			if !job.Terminal() {
				continue
			}
			delete(pending, id)
			if job.Status != models.JobStatusSucceeded {
				failed = append(failed, fmt.Sprintf("%s (%s): %s", job.Key(), job.Status, job.LastError))
			} else {
				fmt.Printf("done: %s\n", job.Key())
			}
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d job(s) did not succeed: %v", len(failed), failed)
	}
	return nil
}
