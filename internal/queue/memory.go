package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/videoflix/streamcore/pkg/models"
)

// MemoryStore is an in-memory Store and VideoStore. It backs the embedded
// CLI mode and the tests; the claim and cancel transitions are atomic under
// one mutex, matching the conditional updates of the Postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.Job
	videos map[string]*models.Video
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*models.Job),
		videos: make(map[string]*models.Video),
	}
}

// AddVideo registers a video record.
func (s *MemoryStore) AddVideo(v *models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.videos[v.ID] = &cp
}

// GetVideo implements VideoStore.
func (s *MemoryStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// CreateJob persists a new job record.
func (s *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, models.ErrConflict)
	}
	// One active job per key, same guarantee as the partial unique index
	// in the Postgres store.
	for _, existing := range s.jobs {
		if existing.VideoID == job.VideoID && existing.Profile == job.Profile && existing.Active() {
			return fmt.Errorf("job for %s already active: %w", job.Key(), models.ErrConflict)
		}
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// GetJob returns a copy of a job record.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

// UpdateJob overwrites a job record.
func (s *MemoryStore) UpdateJob(ctx context.Context, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s: %w", job.ID, models.ErrNotFound)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// ActiveJobForKey returns the queued or running job for a key.
func (s *MemoryStore) ActiveJobForKey(ctx context.Context, videoID, profile string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.VideoID == videoID && job.Profile == profile && job.Active() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// HasSucceeded reports whether any job for the key succeeded.
func (s *MemoryStore) HasSucceeded(ctx context.Context, videoID, profile string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.VideoID == videoID && job.Profile == profile && job.Status == models.JobStatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

// ClaimJob atomically moves queued -> running.
func (s *MemoryStore) ClaimJob(ctx context.Context, id, workerID string, leaseUntil time.Time) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Status != models.JobStatusQueued {
		return nil, fmt.Errorf("job %s is %s: %w", id, job.Status, models.ErrConflict)
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.Attempts++
	job.WorkerID = workerID
	job.StartedAt = &now
	lease := leaseUntil
	job.LeaseExpiresAt = &lease
	cp := *job
	return &cp, nil
}

// CancelJob atomically moves queued -> cancelled.
func (s *MemoryStore) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Status != models.JobStatusQueued {
		return nil, fmt.Errorf("job %s is %s: %w", id, job.Status, models.ErrConflict)
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusCancelled
	job.FinishedAt = &now
	cp := *job
	return &cp, nil
}

// MarkOverwrite flags a still-queued job to re-encode.
func (s *MemoryStore) MarkOverwrite(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Status != models.JobStatusQueued {
		return fmt.Errorf("job %s is %s: %w", id, job.Status, models.ErrConflict)
	}
	job.Overwrite = true
	return nil
}

// ExpiredRunning returns running jobs whose lease expired.
func (s *MemoryStore) ExpiredRunning(ctx context.Context, now time.Time) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*models.Job
	for _, job := range s.jobs {
		if job.Status == models.JobStatusRunning && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.Before(now) {
			cp := *job
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

// StaleQueued returns queued jobs untouched since before the cutoff.
func (s *MemoryStore) StaleQueued(ctx context.Context, olderThan time.Time) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*models.Job
	for _, job := range s.jobs {
		if job.Status != models.JobStatusQueued {
			continue
		}
		last := job.CreatedAt
		if job.StartedAt != nil {
			last = *job.StartedAt
		}
		if last.Before(olderThan) {
			cp := *job
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// MemoryBroker is an in-process Broker backed by a buffered channel. Used by
// the embedded CLI and the tests; deployments use the AMQP broker.
type MemoryBroker struct {
	ch     chan string
	closed sync.Once
	done   chan struct{}
}

// NewMemoryBroker creates a broker with a fixed delivery buffer.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryBroker{
		ch:   make(chan string, buffer),
		done: make(chan struct{}),
	}
}

// Publish enqueues a delivery.
func (b *MemoryBroker) Publish(ctx context.Context, jobID string) error {
	select {
	case b.ch <- jobID:
		return nil
	case <-b.done:
		return fmt.Errorf("broker closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAfter enqueues a delivery after a delay.
func (b *MemoryBroker) PublishAfter(ctx context.Context, jobID string, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		select {
		case b.ch <- jobID:
		case <-b.done:
		}
	})
	return nil
}

// Consume starts one consumer goroutine invoking the handler serially.
func (b *MemoryBroker) Consume(ctx context.Context, handler func(ctx context.Context, jobID string) error) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case jobID := <-b.ch:
				if err := handler(ctx, jobID); err != nil {
					// Handlers own their retries; nothing to redeliver.
					continue
				}
			}
		}
	}()
	return nil
}

// Close stops deliveries.
func (b *MemoryBroker) Close() error {
	b.closed.Do(func() { close(b.done) })
	return nil
}
