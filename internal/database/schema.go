package database

import (
	"context"
	"fmt"
)

// Migrate creates the tables if they do not exist. Idempotent; every binary
// runs it at startup so deployments need no separate migration step.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			profile TEXT NOT NULL,
			status TEXT NOT NULL,
			overwrite BOOLEAN NOT NULL DEFAULT false,
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			worker_id TEXT NOT NULL DEFAULT '',
			lease_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS jobs_key_active_idx
			ON jobs (video_id, profile) WHERE status IN ('queued', 'running')`,
		`CREATE INDEX IF NOT EXISTS jobs_lease_idx
			ON jobs (lease_expires_at) WHERE status = 'running'`,
		`CREATE TABLE IF NOT EXISTS renditions (
			video_id TEXT NOT NULL,
			profile TEXT NOT NULL,
			playlist_key TEXT NOT NULL,
			segment_keys TEXT[] NOT NULL,
			ready BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (video_id, profile)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
