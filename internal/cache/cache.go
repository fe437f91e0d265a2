package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/pkg/models"
)

// Cache is a short-TTL Redis cache in front of the job store. Status
// polling is the only way clients observe completion, so this is the
// hottest read path in the system. Terminal statuses are cached longer
// since they never change again.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.StatusTTL
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client; used by the tests with miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func jobKey(id string) string {
	return "job:" + id
}

// GetJob returns a cached job record, or (nil, nil) on a miss.
func (c *Cache) GetJob(ctx context.Context, id string) (*models.Job, error) {
	data, err := c.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from cache: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached job: %w", err)
	}
	return &job, nil
}

// SetJob caches a job record.
func (c *Cache) SetJob(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ttl := c.ttl
	if job.Terminal() {
		ttl = 10 * c.ttl
	}
	return c.client.Set(ctx, jobKey(job.ID), data, ttl).Err()
}

// DeleteJob drops a cached record, used when a status transition must be
// visible immediately (cancellation).
func (c *Cache) DeleteJob(ctx context.Context, id string) error {
	return c.client.Del(ctx, jobKey(id)).Err()
}
