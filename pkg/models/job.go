package models

import (
	"fmt"
	"time"
)

// Job represents one transcode attempt for a (video, profile) key.
type Job struct {
	ID             string     `json:"id" db:"id"`
	VideoID        string     `json:"video_id" db:"video_id"`
	Profile        string     `json:"profile" db:"profile"`
	Status         string     `json:"status" db:"status"`
	Overwrite      bool       `json:"overwrite" db:"overwrite"`
	Attempts       int        `json:"attempts" db:"attempts"`
	LastError      string     `json:"last_error,omitempty" db:"last_error"`
	WorkerID       string     `json:"worker_id,omitempty" db:"worker_id"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Job status constants
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Key returns the serialization key for the job. At most one job per key is
// running at any instant.
func (j *Job) Key() string {
	return JobKey(j.VideoID, j.Profile)
}

// JobKey builds the (video, profile) serialization key.
func JobKey(videoID, profile string) string {
	return fmt.Sprintf("%s/%s", videoID, profile)
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the job still occupies its (video, profile) key.
func (j *Job) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusRunning
}
