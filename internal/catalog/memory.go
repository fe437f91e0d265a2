package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/videoflix/streamcore/pkg/models"
)

// MemoryRenditionStore is an in-memory RenditionStore for tests and the
// embedded CLI mode.
type MemoryRenditionStore struct {
	mu   sync.RWMutex
	data map[string]*models.Rendition
}

// NewMemoryRenditionStore creates an empty store.
func NewMemoryRenditionStore() *MemoryRenditionStore {
	return &MemoryRenditionStore{data: make(map[string]*models.Rendition)}
}

// SaveRendition upserts a rendition.
func (s *MemoryRenditionStore) SaveRendition(ctx context.Context, r *models.Rendition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.SegmentKeys = append([]string(nil), r.SegmentKeys...)
	s.data[models.JobKey(r.VideoID, r.Profile)] = &cp
	return nil
}

// DeleteRendition removes a rendition record.
func (s *MemoryRenditionStore) DeleteRendition(ctx context.Context, videoID, profile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.JobKey(videoID, profile)
	if _, ok := s.data[key]; !ok {
		return fmt.Errorf("rendition %s: %w", key, models.ErrNotFound)
	}
	delete(s.data, key)
	return nil
}

// ListRenditions returns every stored rendition.
func (s *MemoryRenditionStore) ListRenditions(ctx context.Context) ([]*models.Rendition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Rendition, 0, len(s.data))
	for _, r := range s.data {
		cp := *r
		cp.SegmentKeys = append([]string(nil), r.SegmentKeys...)
		out = append(out, &cp)
	}
	return out, nil
}
