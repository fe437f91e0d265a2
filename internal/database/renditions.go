package database

import (
	"context"
	"fmt"

	"github.com/videoflix/streamcore/pkg/models"
)

// RenditionRepository is the durable record behind the rendition catalog.
type RenditionRepository struct {
	db *DB
}

// NewRenditionRepository creates a rendition repository.
func NewRenditionRepository(db *DB) *RenditionRepository {
	return &RenditionRepository{db: db}
}

// SaveRendition upserts the single rendition for its (video, profile) key.
func (r *RenditionRepository) SaveRendition(ctx context.Context, rendition *models.Rendition) error {
	query := `
		INSERT INTO renditions (video_id, profile, playlist_key, segment_keys, ready, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (video_id, profile)
		DO UPDATE SET playlist_key = $3, segment_keys = $4, ready = $5, created_at = $6
	`
	_, err := r.db.Pool.Exec(ctx, query,
		rendition.VideoID, rendition.Profile, rendition.PlaylistKey,
		rendition.SegmentKeys, rendition.Ready, rendition.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rendition: %w", err)
	}
	return nil
}

// DeleteRendition removes a rendition record.
func (r *RenditionRepository) DeleteRendition(ctx context.Context, videoID, profile string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM renditions WHERE video_id = $1 AND profile = $2`,
		videoID, profile,
	)
	if err != nil {
		return fmt.Errorf("failed to delete rendition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rendition %s: %w", models.JobKey(videoID, profile), models.ErrNotFound)
	}
	return nil
}

// ListRenditions returns every ready rendition.
func (r *RenditionRepository) ListRenditions(ctx context.Context) ([]*models.Rendition, error) {
	query := `
		SELECT video_id, profile, playlist_key, segment_keys, ready, created_at
		FROM renditions
		WHERE ready
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list renditions: %w", err)
	}
	defer rows.Close()

	var renditions []*models.Rendition
	for rows.Next() {
		var rendition models.Rendition
		err := rows.Scan(
			&rendition.VideoID, &rendition.Profile, &rendition.PlaylistKey,
			&rendition.SegmentKeys, &rendition.Ready, &rendition.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rendition: %w", err)
		}
		renditions = append(renditions, &rendition)
	}
	return renditions, rows.Err()
}
