package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/pkg/models"
)

// fakeProcessor counts invocations and returns a scripted result.
type fakeProcessor struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, job *models.Job) (*models.Rendition, error)
}

func (p *fakeProcessor) Process(ctx context.Context, job *models.Job) (*models.Rendition, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(ctx, job)
	}
	return renditionFor(job), nil
}

func (p *fakeProcessor) invocations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeRegistrar records registrations and removals.
type fakeRegistrar struct {
	mu          sync.Mutex
	registered  []*models.Rendition
	removed     []string
	registerErr error
}

func (r *fakeRegistrar) Register(ctx context.Context, rendition *models.Rendition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return r.registerErr
	}
	r.registered = append(r.registered, rendition)
	return nil
}

func (r *fakeRegistrar) Remove(ctx context.Context, videoID, profile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, models.JobKey(videoID, profile))
	return nil
}

func renditionFor(job *models.Job) *models.Rendition {
	return &models.Rendition{
		VideoID:     job.VideoID,
		Profile:     job.Profile,
		PlaylistKey: models.PlaylistKey(job.VideoID, job.Profile),
		SegmentKeys: []string{models.SegmentKey(job.VideoID, job.Profile, 0)},
	}
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		WorkerCount:  1,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffCap:   10 * time.Millisecond,
		LeaseTimeout: time.Minute,
		JobTimeout:   time.Minute,
	}
}

func newTestRunner(t *testing.T, proc *fakeProcessor, reg *fakeRegistrar) (*Runner, *MemoryStore, *MemoryBroker) {
	t.Helper()
	store := NewMemoryStore()
	broker := NewMemoryBroker(64)
	t.Cleanup(func() { broker.Close() })
	r := NewRunner(store, broker, proc, reg, testPipelineConfig(), testLogger(t))
	return r, store, broker
}

func queuedJob(t *testing.T, store *MemoryStore, id string, overwrite bool) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:        id,
		VideoID:   "v1",
		Profile:   "720p",
		Status:    models.JobStatusQueued,
		Overwrite: overwrite,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestHandleSuccess(t *testing.T) {
	proc := &fakeProcessor{}
	reg := &fakeRegistrar{}
	r, store, _ := newTestRunner(t, proc, reg)
	ctx := context.Background()

	queuedJob(t, store, "j1", false)
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusSucceeded {
		t.Errorf("status = %s, want succeeded (last error %q)", job.Status, job.LastError)
	}
	if job.FinishedAt == nil {
		t.Error("succeeded job must carry a finish time")
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}
	if len(reg.registered) != 1 || reg.registered[0].Profile != "720p" {
		t.Errorf("expected one registered rendition, got %v", reg.registered)
	}
}

func TestHandleSkipsNonQueued(t *testing.T) {
	proc := &fakeProcessor{}
	r, store, _ := newTestRunner(t, proc, &fakeRegistrar{})
	ctx := context.Background()

	job := queuedJob(t, store, "j1", false)
	if _, err := store.CancelJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.handle(ctx, job.ID); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proc.invocations() != 0 {
		t.Errorf("processor must not run for cancelled jobs, ran %d times", proc.invocations())
	}

	// Unknown job ids are dropped silently (stale deliveries).
	if err := r.handle(ctx, "ghost"); err != nil {
		t.Errorf("handle(ghost): %v", err)
	}
}

func TestHandleTransientRetryCeiling(t *testing.T) {
	proc := &fakeProcessor{
		fn: func(ctx context.Context, job *models.Job) (*models.Rendition, error) {
			return nil, models.NewTransientEncodeError("cannot allocate memory", nil)
		},
	}
	r, store, _ := newTestRunner(t, proc, &fakeRegistrar{})
	ctx := context.Background()

	queuedJob(t, store, "j1", false)

	// Drive the deliveries by hand; each transient failure requeues until
	// the attempt ceiling.
	for i := 0; i < 3; i++ {
		if err := r.handle(ctx, "j1"); err != nil {
			t.Fatalf("handle attempt %d: %v", i+1, err)
		}
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed after attempt ceiling", job.Status)
	}
	if job.Attempts != 3 {
		t.Errorf("attempts = %d, want exactly 3", job.Attempts)
	}
	if proc.invocations() != 3 {
		t.Errorf("processor ran %d times, want 3", proc.invocations())
	}
	if job.LastError == "" {
		t.Error("failed job must carry the last error")
	}

	// A fourth delivery is a no-op on the terminal record.
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if proc.invocations() != 3 {
		t.Error("terminal job must not run again")
	}
}

func TestHandleTransientRequeueClearsClaim(t *testing.T) {
	proc := &fakeProcessor{
		fn: func(ctx context.Context, job *models.Job) (*models.Rendition, error) {
			return nil, models.NewTransientEncodeError("resource temporarily unavailable", nil)
		},
	}
	r, store, _ := newTestRunner(t, proc, &fakeRegistrar{})
	ctx := context.Background()

	queuedJob(t, store, "j1", false)
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	// The requeued record must look like any other queued job: no worker,
	// no lease, claimable by anyone.
	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	if job.WorkerID != "" {
		t.Errorf("worker id = %q, requeue must release the claim", job.WorkerID)
	}
	if job.LeaseExpiresAt != nil {
		t.Error("requeue must clear the lease")
	}
}

func TestHandleFatalNoRetry(t *testing.T) {
	proc := &fakeProcessor{
		fn: func(ctx context.Context, job *models.Job) (*models.Rendition, error) {
			return nil, models.NewEncodeError("invalid data found when processing input", nil)
		},
	}
	r, store, _ := newTestRunner(t, proc, &fakeRegistrar{})
	ctx := context.Background()

	queuedJob(t, store, "j1", false)
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, fatal errors must not retry", job.Attempts)
	}
}

func TestHandleRegisterFailureIsFatal(t *testing.T) {
	proc := &fakeProcessor{}
	reg := &fakeRegistrar{registerErr: errors.New("playlist unreadable")}
	r, store, _ := newTestRunner(t, proc, reg)
	ctx := context.Background()

	queuedJob(t, store, "j1", false)
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusFailed {
		t.Errorf("status = %s, want failed on registration failure", job.Status)
	}
}

func TestHandleOverwriteWithdrawsCatalogEntry(t *testing.T) {
	proc := &fakeProcessor{}
	reg := &fakeRegistrar{}
	r, store, _ := newTestRunner(t, proc, reg)
	ctx := context.Background()

	queuedJob(t, store, "j1", true)
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if len(reg.removed) != 1 || reg.removed[0] != "v1/720p" {
		t.Errorf("overwrite must withdraw the old rendition first, removed %v", reg.removed)
	}
}

func TestHandleJobTimeoutIsTransient(t *testing.T) {
	proc := &fakeProcessor{
		fn: func(ctx context.Context, job *models.Job) (*models.Rendition, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r, store, _ := newTestRunner(t, proc, &fakeRegistrar{})
	r.cfg.JobTimeout = 10 * time.Millisecond
	ctx := context.Background()

	queuedJob(t, store, "j1", false)
	if err := r.handle(ctx, "j1"); err != nil {
		t.Fatal(err)
	}

	job, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("status = %s, timed-out jobs must requeue", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}
}

func TestSweepRequeuesExpiredLeases(t *testing.T) {
	r, store, broker := newTestRunner(t, &fakeProcessor{}, &fakeRegistrar{})
	ctx := context.Background()

	job := queuedJob(t, store, "j1", false)
	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := store.ClaimJob(ctx, job.ID, "dead-worker", expired); err != nil {
		t.Fatal(err)
	}

	if err := r.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobStatusQueued {
		t.Errorf("status = %s, want queued after sweep", got.Status)
	}
	if got.WorkerID != "" || got.LeaseExpiresAt != nil {
		t.Error("sweep must clear the worker and lease")
	}

	select {
	case id := <-broker.ch:
		if id != job.ID {
			t.Errorf("republished %s, want %s", id, job.ID)
		}
	default:
		t.Error("sweep must republish the recovered job")
	}
}

func TestSweepRepublishesStaleQueued(t *testing.T) {
	r, store, broker := newTestRunner(t, &fakeProcessor{}, &fakeRegistrar{})
	ctx := context.Background()

	// A job created long ago whose delivery was lost.
	job := &models.Job{
		ID:        "j1",
		VideoID:   "v1",
		Profile:   "720p",
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	if err := r.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	select {
	case id := <-broker.ch:
		if id != "j1" {
			t.Errorf("republished %s, want j1", id)
		}
	default:
		t.Error("sweep must republish stale queued jobs")
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	proc := &fakeProcessor{}
	reg := &fakeRegistrar{}
	store := NewMemoryStore()
	store.AddVideo(&models.Video{ID: "v1", SourceKey: "videos/v1.mp4"})
	broker := NewMemoryBroker(16)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(store, broker, proc, reg, testPipelineConfig(), testLogger(t))
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	q := New(store, store, broker, models.DefaultLadder(), testLogger(t))
	job, err := q.Enqueue(ctx, "v1", "720p", false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := q.Status(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Terminal() {
			if got.Status != models.JobStatusSucceeded {
				t.Fatalf("job finished %s: %s", got.Status, got.LastError)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
