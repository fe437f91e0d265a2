package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/pkg/models"
)

// RenditionStore is the durable record behind the catalog.
type RenditionStore interface {
	// SaveRendition upserts the single rendition for its (video, profile) key.
	SaveRendition(ctx context.Context, r *models.Rendition) error
	DeleteRendition(ctx context.Context, videoID, profile string) error
	// ListRenditions returns every ready rendition, used to rebuild the
	// index at startup.
	ListRenditions(ctx context.Context) ([]*models.Rendition, error)
}

// Catalog maps videos to their ready renditions. Lookups are O(1) against
// an in-memory index; registration verifies artifacts against storage,
// persists, then publishes the entry atomically under the write lock, so a
// rendition is visible if and only if it was complete at registration time.
type Catalog struct {
	mu    sync.RWMutex
	byKey map[string]*models.Rendition

	store  RenditionStore
	blobs  storage.Store
	ladder models.Ladder
	log    *logging.Logger
}

// New creates an empty catalog. Call Load to rebuild the index from the
// durable store.
func New(store RenditionStore, blobs storage.Store, ladder models.Ladder, log *logging.Logger) *Catalog {
	return &Catalog{
		byKey:  make(map[string]*models.Rendition),
		store:  store,
		blobs:  blobs,
		ladder: ladder,
		log:    log,
	}
}

// Load rebuilds the in-memory index from the durable store. A crash between
// artifact upload and registration leaves no record, so half-finished
// renditions never reappear here; their jobs are requeued by the recovery
// sweep instead.
func (c *Catalog) Load(ctx context.Context) error {
	renditions, err := c.store.ListRenditions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rendition catalog: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey = make(map[string]*models.Rendition, len(renditions))
	for _, r := range renditions {
		c.byKey[models.JobKey(r.VideoID, r.Profile)] = r
	}
	c.log.Infof("rendition catalog loaded, %d entries", len(renditions))
	return nil
}

// Register verifies and publishes a finished rendition. Called only after
// the transcode engine succeeded; the readiness flip and the index update
// happen under one write lock and after the durable write, never observably
// split.
func (c *Catalog) Register(ctx context.Context, r *models.Rendition) error {
	if r.VideoID == "" || r.Profile == "" {
		return fmt.Errorf("rendition missing video or profile")
	}
	if _, err := c.ladder.ByName(r.Profile); err != nil {
		return err
	}
	if len(r.SegmentKeys) == 0 {
		return fmt.Errorf("rendition %s has no segments", models.JobKey(r.VideoID, r.Profile))
	}

	// Completeness check: playlist and every segment must exist and be
	// non-empty right now. The catalog does not re-verify on lookup.
	if err := c.verify(ctx, r.PlaylistKey); err != nil {
		return err
	}
	for _, key := range r.SegmentKeys {
		if err := c.verify(ctx, key); err != nil {
			return err
		}
	}

	r.Ready = true
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := c.store.SaveRendition(ctx, r); err != nil {
		return fmt.Errorf("failed to persist rendition: %w", err)
	}

	c.mu.Lock()
	c.byKey[models.JobKey(r.VideoID, r.Profile)] = r
	c.mu.Unlock()

	c.log.WithVideoID(r.VideoID).WithProfile(r.Profile).
		Infof("rendition registered, %d segments", len(r.SegmentKeys))
	return nil
}

func (c *Catalog) verify(ctx context.Context, key string) error {
	info, err := c.blobs.Stat(ctx, key)
	if err != nil {
		return fmt.Errorf("rendition artifact %s not readable: %w", key, err)
	}
	if info.Size == 0 {
		return fmt.Errorf("rendition artifact %s is empty", key)
	}
	return nil
}

// Lookup returns the ready rendition for a (video, profile) key.
func (c *Catalog) Lookup(ctx context.Context, videoID, profile string) (*models.Rendition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byKey[models.JobKey(videoID, profile)]
	if !ok || !r.Ready {
		return nil, fmt.Errorf("rendition %s: %w", models.JobKey(videoID, profile), models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// List returns the available profiles for a video in ladder order, the
// order clients should fall back through.
func (c *Catalog) List(ctx context.Context, videoID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var profiles []string
	for _, p := range c.ladder {
		if r, ok := c.byKey[models.JobKey(videoID, p.Name)]; ok && r.Ready {
			profiles = append(profiles, p.Name)
		}
	}
	return profiles, nil
}

// Remove withdraws a rendition, durably first. Used before an overwrite
// re-encode and on video deletion.
func (c *Catalog) Remove(ctx context.Context, videoID, profile string) error {
	c.mu.RLock()
	_, ok := c.byKey[models.JobKey(videoID, profile)]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("rendition %s: %w", models.JobKey(videoID, profile), models.ErrNotFound)
	}
	if err := c.store.DeleteRendition(ctx, videoID, profile); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	c.mu.Lock()
	delete(c.byKey, models.JobKey(videoID, profile))
	c.mu.Unlock()
	return nil
}

// RemoveVideo withdraws every rendition of a video.
func (c *Catalog) RemoveVideo(ctx context.Context, videoID string) error {
	for _, p := range c.ladder {
		if err := c.Remove(ctx, videoID, p.Name); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	return nil
}
