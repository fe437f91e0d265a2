package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/videoflix/streamcore/pkg/models"
)

// JobRepository is the durable job record behind the queue. Claim and
// cancel are conditional updates, so the single-running-per-key guarantee
// holds across worker processes.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, video_id, profile, status, overwrite, attempts, last_error,
       worker_id, lease_expires_at, created_at, started_at, finished_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.VideoID, &job.Profile, &job.Status, &job.Overwrite,
		&job.Attempts, &job.LastError, &job.WorkerID, &job.LeaseExpiresAt,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob persists a new job record. A partial unique index on
// (video_id, profile) over active statuses turns a concurrent duplicate
// enqueue into models.ErrConflict, which the producer resolves by
// coalescing into the winner.
func (r *JobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, video_id, profile, status, overwrite, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		job.ID, job.VideoID, job.Profile, job.Status, job.Overwrite,
		job.Attempts, job.LastError, job.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("job for %s already active: %w", job.Key(), models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists a job mutation.
func (r *JobRepository) UpdateJob(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, attempts = $3, last_error = $4, worker_id = $5,
		    lease_expires_at = $6, started_at = $7, finished_at = $8
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query,
		job.ID, job.Status, job.Attempts, job.LastError, job.WorkerID,
		job.LeaseExpiresAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// ActiveJobForKey returns the queued or running job for a (video, profile)
// key.
func (r *JobRepository) ActiveJobForKey(ctx context.Context, videoID, profile string) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE video_id = $1 AND profile = $2 AND status IN ($3, $4)
		ORDER BY created_at
		LIMIT 1
	`
	job, err := scanJob(r.db.Pool.QueryRow(ctx, query,
		videoID, profile, models.JobStatusQueued, models.JobStatusRunning))
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return job, nil
}

// HasSucceeded reports whether any job for the key already succeeded.
func (r *JobRepository) HasSucceeded(ctx context.Context, videoID, profile string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE video_id = $1 AND profile = $2 AND status = $3
		)
	`
	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, videoID, profile, models.JobStatusSucceeded).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check succeeded jobs: %w", err)
	}
	return exists, nil
}

// ClaimJob atomically moves a queued job to running.
func (r *JobRepository) ClaimJob(ctx context.Context, id, workerID string, leaseUntil time.Time) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, worker_id = $3,
		    started_at = now(), lease_expires_at = $4
		WHERE id = $1 AND status = $5
		RETURNING ` + jobColumns
	job, err := scanJob(r.db.Pool.QueryRow(ctx, query,
		id, models.JobStatusRunning, workerID, leaseUntil, models.JobStatusQueued))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("job %s not claimable: %w", id, models.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// CancelJob atomically moves a queued job to cancelled.
func (r *JobRepository) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2, finished_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + jobColumns
	job, err := scanJob(r.db.Pool.QueryRow(ctx, query,
		id, models.JobStatusCancelled, models.JobStatusQueued))
	if err == pgx.ErrNoRows {
		// Distinguish a missing job from one already past queued.
		if _, getErr := r.GetJob(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("job %s already started: %w", id, models.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	return job, nil
}

// MarkOverwrite flags a still-queued job to re-encode. The conditional
// update keeps it from touching a job a worker already claimed.
func (r *JobRepository) MarkOverwrite(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE jobs SET overwrite = TRUE WHERE id = $1 AND status = $2`,
		id, models.JobStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job overwrite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not queued: %w", id, models.ErrConflict)
	}
	return nil
}

// ExpiredRunning returns running jobs whose lease expired before now.
func (r *JobRepository) ExpiredRunning(ctx context.Context, now time.Time) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND lease_expires_at < $2
	`
	return r.queryJobs(ctx, query, models.JobStatusRunning, now)
}

// StaleQueued returns queued jobs untouched since before the cutoff.
func (r *JobRepository) StaleQueued(ctx context.Context, olderThan time.Time) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND COALESCE(started_at, created_at) < $2
	`
	return r.queryJobs(ctx, query, models.JobStatusQueued, olderThan)
}

func (r *JobRepository) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.Job, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
