package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/metrics"
	"github.com/videoflix/streamcore/pkg/models"
)

// Store is the durable job record the queue runs on. Every status
// transition goes through it before becoming observable.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	// ActiveJobForKey returns the queued or running job for a
	// (video, profile) key, or models.ErrNotFound.
	ActiveJobForKey(ctx context.Context, videoID, profile string) (*models.Job, error)
	// HasSucceeded reports whether any job for the key already succeeded.
	HasSucceeded(ctx context.Context, videoID, profile string) (bool, error)
	// ClaimJob atomically moves a queued job to running, bumping the
	// attempt count and stamping the lease. Returns models.ErrConflict when
	// the job is not claimable (already running, cancelled or terminal).
	ClaimJob(ctx context.Context, id, workerID string, leaseUntil time.Time) (*models.Job, error)
	// CancelJob atomically moves a queued job to cancelled. Returns
	// models.ErrConflict when the job already left the queued state.
	CancelJob(ctx context.Context, id string) (*models.Job, error)
	// MarkOverwrite flags a queued job to re-encode instead of reusing
	// stored output. Returns models.ErrConflict when the job already left
	// the queued state.
	MarkOverwrite(ctx context.Context, id string) error
	// ExpiredRunning returns running jobs whose lease expired before now.
	ExpiredRunning(ctx context.Context, now time.Time) ([]*models.Job, error)
	// StaleQueued returns queued jobs created before the cutoff whose
	// broker delivery may have been lost.
	StaleQueued(ctx context.Context, olderThan time.Time) ([]*models.Job, error)
}

// VideoStore resolves video ids to their immutable source reference.
type VideoStore interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
}

// Broker carries job ids from producers to the worker pool. The payload is
// just the id; the durable record lives in the Store.
type Broker interface {
	Publish(ctx context.Context, jobID string) error
	// PublishAfter redelivers a job id after a delay (retry backoff).
	PublishAfter(ctx context.Context, jobID string, delay time.Duration) error
	// Consume registers one consumer; the handler is invoked serially per
	// consumer until ctx is cancelled.
	Consume(ctx context.Context, handler func(ctx context.Context, jobID string) error) error
	Close() error
}

// Queue is the producer side of the job queue: it accepts transcode
// requests, deduplicates them per (video, profile) key and hands the ids to
// the broker. Enqueue never blocks on job completion; status polling is the
// only way to observe it.
type Queue struct {
	store    Store
	videos   VideoStore
	broker   Broker
	profiles models.Ladder
	log      *logging.Logger
}

// New creates the producer API.
func New(store Store, videos VideoStore, broker Broker, profiles models.Ladder, log *logging.Logger) *Queue {
	return &Queue{
		store:    store,
		videos:   videos,
		broker:   broker,
		profiles: profiles,
		log:      log,
	}
}

// Enqueue creates (or coalesces into) a transcode job for one profile.
//
// A second enqueue while a job for the same key is queued or running
// coalesces into the existing job id. An overwrite enqueue coalescing into
// a still-queued job upgrades it to overwrite; a running job keeps the
// intent it was claimed with. A non-overwrite enqueue for a key that
// already succeeded returns models.ErrConflict.
func (q *Queue) Enqueue(ctx context.Context, videoID, profileName string, overwrite bool) (*models.Job, error) {
	profile, err := q.profiles.ByName(profileName)
	if err != nil {
		return nil, err
	}
	if _, err := q.videos.GetVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("video %s: %w", videoID, err)
	}

	if existing, err := q.store.ActiveJobForKey(ctx, videoID, profile.Name); err == nil {
		q.log.WithJobID(existing.ID).WithVideoID(videoID).WithProfile(profile.Name).
			Debug("coalesced enqueue into in-flight job")
		return q.coalesce(ctx, existing, overwrite)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if !overwrite {
		done, err := q.store.HasSucceeded(ctx, videoID, profile.Name)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, fmt.Errorf("rendition %s already transcoded: %w",
				models.JobKey(videoID, profile.Name), models.ErrConflict)
		}
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		VideoID:   videoID,
		Profile:   profile.Name,
		Status:    models.JobStatusQueued,
		Overwrite: overwrite,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.store.CreateJob(ctx, job); err != nil {
		// A concurrent enqueue for the same key won the insert; coalesce
		// into its job like the fast path above.
		if errors.Is(err, models.ErrConflict) {
			if existing, lookupErr := q.store.ActiveJobForKey(ctx, videoID, profile.Name); lookupErr == nil {
				return q.coalesce(ctx, existing, overwrite)
			}
		}
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	if err := q.broker.Publish(ctx, job.ID); err != nil {
		// The durable record stays queued; the recovery sweep republishes
		// stale queued jobs, so a lost publish only delays the job.
		q.log.WithJobID(job.ID).ErrorWithErr("failed to publish job", err)
	}

	metrics.JobsEnqueuedTotal.WithLabelValues(profile.Name).Inc()
	q.log.LogJobEvent(job.ID, "enqueued", job.Status)
	return job, nil
}

// coalesce folds an enqueue into the in-flight job for its key. Overwrite
// intent is carried over while the job is still queued; once claimed, the
// run keeps the intent it started with and the caller re-enqueues after it
// finishes if a re-encode is still wanted.
func (q *Queue) coalesce(ctx context.Context, existing *models.Job, overwrite bool) (*models.Job, error) {
	if !overwrite || existing.Overwrite {
		return existing, nil
	}
	err := q.store.MarkOverwrite(ctx, existing.ID)
	if errors.Is(err, models.ErrConflict) {
		q.log.WithJobID(existing.ID).Debug("job already claimed, overwrite intent dropped")
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	existing.Overwrite = true
	return existing, nil
}

// EnqueueAll enqueues one job per configured profile, in ladder order.
// Per-key conflicts are skipped rather than failing the whole request, so
// re-running against a partially transcoded video converges.
func (q *Queue) EnqueueAll(ctx context.Context, videoID string, overwrite bool) ([]*models.Job, error) {
	var jobs []*models.Job
	for _, p := range q.profiles {
		job, err := q.Enqueue(ctx, videoID, p.Name, overwrite)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Status returns the durable job record.
func (q *Queue) Status(ctx context.Context, id string) (*models.Job, error) {
	return q.store.GetJob(ctx, id)
}

// Cancel withdraws a job that has not started. Running jobs are not
// interruptible; the engine runs to completion or failure.
func (q *Queue) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := q.store.CancelJob(ctx, id)
	if err != nil {
		return nil, err
	}
	q.log.LogJobEvent(job.ID, "cancelled", job.Status)
	return job, nil
}
