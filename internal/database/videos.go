package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/videoflix/streamcore/pkg/models"
)

// VideoRepository stores the minimal video records the pipeline needs.
type VideoRepository struct {
	db *DB
}

// NewVideoRepository creates a video repository.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// CreateVideo persists a new video record.
func (r *VideoRepository) CreateVideo(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.New().String()
	}
	query := `
		INSERT INTO videos (id, title, source_key)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(ctx, query, video.ID, video.Title, video.SourceKey).
		Scan(&video.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

// GetVideo retrieves a video by ID.
func (r *VideoRepository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	query := `SELECT id, title, source_key, created_at FROM videos WHERE id = $1`
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&video.ID, &video.Title, &video.SourceKey, &video.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("video %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &video, nil
}

// ListVideos retrieves all videos, newest first.
func (r *VideoRepository) ListVideos(ctx context.Context) ([]*models.Video, error) {
	query := `SELECT id, title, source_key, created_at FROM videos ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		var video models.Video
		if err := rows.Scan(&video.ID, &video.Title, &video.SourceKey, &video.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, &video)
	}
	return videos, rows.Err()
}

// DeleteVideo removes a video record.
func (r *VideoRepository) DeleteVideo(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s: %w", id, models.ErrNotFound)
	}
	return nil
}
