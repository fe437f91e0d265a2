package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/videoflix/streamcore/pkg/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client, 2*time.Second)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetJobMiss(t *testing.T) {
	c, _ := setupTestCache(t)
	job, err := c.GetJob(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job != nil {
		t.Error("expected nil on cache miss")
	}
}

func TestSetGetJob(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	job := &models.Job{
		ID:      "j1",
		VideoID: "v1",
		Profile: "720p",
		Status:  models.JobStatusRunning,
	}
	if err := c.SetJob(ctx, job); err != nil {
		t.Fatalf("SetJob: %v", err)
	}

	got, err := c.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil || got.ID != "j1" || got.Status != models.JobStatusRunning {
		t.Errorf("unexpected cached job: %+v", got)
	}
}

func TestActiveJobsExpireFast(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	active := &models.Job{ID: "active", Status: models.JobStatusRunning}
	terminal := &models.Job{ID: "done", Status: models.JobStatusSucceeded}
	if err := c.SetJob(ctx, active); err != nil {
		t.Fatal(err)
	}
	if err := c.SetJob(ctx, terminal); err != nil {
		t.Fatal(err)
	}

	// Past the short TTL but inside the extended terminal TTL.
	mr.FastForward(3 * time.Second)

	if got, _ := c.GetJob(ctx, "active"); got != nil {
		t.Error("active job should have expired with the short TTL")
	}
	got, err := c.GetJob(ctx, "done")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("terminal job should outlive the short TTL")
	}
}

func TestDeleteJob(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	job := &models.Job{ID: "j1", Status: models.JobStatusQueued}
	if err := c.SetJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteJob(ctx, "j1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if got, _ := c.GetJob(ctx, "j1"); got != nil {
		t.Error("deleted job still cached")
	}
}
