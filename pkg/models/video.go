package models

import "time"

// Video is the minimal source entity the pipeline needs: an identifier and
// the storage key of the uploaded source file. The source key is immutable
// once a job references it. Richer catalog metadata (descriptions,
// thumbnails, categories) lives outside this core.
type Video struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
