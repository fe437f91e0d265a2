package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/metrics"
	"github.com/videoflix/streamcore/pkg/models"
)

// Processor turns a claimed job into a finished rendition. Implemented by
// the transcoder service.
type Processor interface {
	Process(ctx context.Context, job *models.Job) (*models.Rendition, error)
}

// Registrar is the slice of the rendition catalog the runner needs.
type Registrar interface {
	Register(ctx context.Context, rendition *models.Rendition) error
	Remove(ctx context.Context, videoID, profile string) error
}

// Runner is the consumer side of the job queue: a fixed-size worker pool
// fed by the broker, plus the lease recovery sweep. The atomic claim in the
// store guarantees at most one running job per (video, profile) key even
// with redundant deliveries.
type Runner struct {
	store    Store
	broker   Broker
	proc     Processor
	catalog  Registrar
	cfg      config.PipelineConfig
	workerID string
	log      *logging.Logger
}

// NewRunner creates a worker-pool runner.
func NewRunner(store Store, broker Broker, proc Processor, catalog Registrar, cfg config.PipelineConfig, log *logging.Logger) *Runner {
	workerID := uuid.New().String()
	return &Runner{
		store:    store,
		broker:   broker,
		proc:     proc,
		catalog:  catalog,
		cfg:      cfg,
		workerID: workerID,
		log:      log.WithWorkerID(workerID),
	}
}

// Start runs the recovery sweep once, then launches the worker pool and the
// periodic sweep. It returns immediately; workers stop when ctx is
// cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.sweep(ctx); err != nil {
		return fmt.Errorf("startup recovery sweep: %w", err)
	}
	for i := 0; i < r.cfg.WorkerCount; i++ {
		if err := r.broker.Consume(ctx, r.handle); err != nil {
			return fmt.Errorf("failed to start worker %d: %w", i, err)
		}
	}
	go r.sweepLoop(ctx)
	r.log.Infof("runner started with %d workers", r.cfg.WorkerCount)
	return nil
}

// handle processes one broker delivery. It always returns nil: retries are
// scheduled by the runner itself so that attempt accounting and backoff stay
// in the durable record, not in broker redelivery semantics.
func (r *Runner) handle(ctx context.Context, jobID string) error {
	job, err := r.store.GetJob(ctx, jobID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		r.log.WithJobID(jobID).ErrorWithErr("failed to load job", err)
		return nil
	}
	if job.Status != models.JobStatusQueued {
		// Cancelled, already claimed by a peer, or a stale redelivery.
		return nil
	}

	leaseUntil := time.Now().UTC().Add(r.cfg.LeaseTimeout)
	job, err = r.store.ClaimJob(ctx, jobID, r.workerID, leaseUntil)
	if errors.Is(err, models.ErrConflict) {
		return nil
	}
	if err != nil {
		r.log.WithJobID(jobID).ErrorWithErr("failed to claim job", err)
		return nil
	}

	log := r.log.WithJobID(job.ID).WithVideoID(job.VideoID).WithProfile(job.Profile)
	log.LogJobEvent(job.ID, "claimed", job.Status)
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	start := time.Now()
	rendition, err := r.process(ctx, job)
	if err != nil {
		r.finishFailure(ctx, job, err)
		return nil
	}

	if err := r.catalog.Register(ctx, rendition); err != nil {
		// A rendition that cannot be verified against storage is a fatal
		// integrity problem, not a retry candidate.
		r.finishFailure(ctx, job, &models.StorageError{Op: "register", Key: rendition.PlaylistKey, Err: err})
		return nil
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusSucceeded
	job.LastError = ""
	job.LeaseExpiresAt = nil
	job.FinishedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		log.ErrorWithErr("failed to persist job success", err)
		return nil
	}
	metrics.JobsCompletedTotal.WithLabelValues(job.Status).Inc()
	metrics.JobDurationSeconds.WithLabelValues(job.Profile).Observe(time.Since(start).Seconds())
	log.LogJobEvent(job.ID, "succeeded", job.Status)
	return nil
}

// process runs the processor under the job wall-clock ceiling. An overwrite
// job first withdraws the old rendition from the catalog so stale segments
// are never reachable while being replaced.
func (r *Runner) process(ctx context.Context, job *models.Job) (*models.Rendition, error) {
	if job.Overwrite {
		if err := r.catalog.Remove(ctx, job.VideoID, job.Profile); err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	jobCtx := ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	rendition, err := r.proc.Process(jobCtx, job)
	if err != nil {
		if jobCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s", models.ErrTimeout, r.cfg.JobTimeout)
		}
		return nil, err
	}
	return rendition, nil
}

// finishFailure applies the retry policy: transient failures requeue with
// exponential backoff until the attempt ceiling, everything else is final.
// The durable record is updated before the redelivery is scheduled.
func (r *Runner) finishFailure(ctx context.Context, job *models.Job, cause error) {
	log := r.log.WithJobID(job.ID).WithVideoID(job.VideoID).WithProfile(job.Profile)
	job.LastError = cause.Error()
	job.LeaseExpiresAt = nil

	if models.IsTransient(cause) && job.Attempts < r.cfg.MaxAttempts {
		job.Status = models.JobStatusQueued
		job.WorkerID = ""
		if err := r.store.UpdateJob(ctx, job); err != nil {
			log.ErrorWithErr("failed to requeue job", err)
			return
		}
		delay := r.backoff(job.Attempts)
		metrics.JobRetriesTotal.Inc()
		log.WithError(cause).Warnf("transient failure, retry %d/%d in %s", job.Attempts, r.cfg.MaxAttempts, delay)
		if err := r.broker.PublishAfter(ctx, job.ID, delay); err != nil {
			log.ErrorWithErr("failed to schedule retry", err)
		}
		return
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusFailed
	job.FinishedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		log.ErrorWithErr("failed to persist job failure", err)
		return
	}
	metrics.JobsCompletedTotal.WithLabelValues(job.Status).Inc()
	log.WithError(cause).ErrorWithErr("job failed", cause)
}

// backoff returns the delay before retry number attempt+1.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.cfg.BackoffBase
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if r.cfg.BackoffCap > 0 && d >= r.cfg.BackoffCap {
			return r.cfg.BackoffCap
		}
	}
	return d
}

// sweepLoop periodically requeues jobs abandoned by crashed workers.
func (r *Runner) sweepLoop(ctx context.Context) {
	interval := r.cfg.LeaseTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.log.ErrorWithErr("recovery sweep failed", err)
			}
		}
	}
}

// sweep requeues every running job whose lease expired. A worker that died
// between writing its last segment and registration lands here too: the
// catalog never saw the rendition, so the job simply runs again.
func (r *Runner) sweep(ctx context.Context) error {
	expired, err := r.store.ExpiredRunning(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, job := range expired {
		job.Status = models.JobStatusQueued
		job.LeaseExpiresAt = nil
		job.WorkerID = ""
		if err := r.store.UpdateJob(ctx, job); err != nil {
			r.log.WithJobID(job.ID).ErrorWithErr("failed to requeue expired job", err)
			continue
		}
		metrics.JobsRecoveredTotal.Inc()
		r.log.WithJobID(job.ID).Warnf("requeued job with expired lease (attempt %d)", job.Attempts)
		if err := r.broker.Publish(ctx, job.ID); err != nil {
			r.log.WithJobID(job.ID).ErrorWithErr("failed to republish expired job", err)
		}
	}

	// Queued jobs whose broker delivery was lost (publish failure, broker
	// restart) are republished once they are older than the lease timeout.
	// Redundant deliveries are harmless: the claim admits only one.
	stale, err := r.store.StaleQueued(ctx, time.Now().UTC().Add(-r.cfg.LeaseTimeout))
	if err != nil {
		return err
	}
	for _, job := range stale {
		if err := r.broker.Publish(ctx, job.ID); err != nil {
			r.log.WithJobID(job.ID).ErrorWithErr("failed to republish stale job", err)
		}
	}
	return nil
}
