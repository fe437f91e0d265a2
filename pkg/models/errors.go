package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify with errors.Is.
var (
	// ErrNotFound is returned for unknown videos, profiles, jobs, segments
	// and renditions that are not (yet) registered.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an enqueue collides with an already
	// succeeded job for the same (video, profile) key, or when cancelling
	// a job that is no longer queued.
	ErrConflict = errors.New("conflict")

	// ErrTimeout marks a job that exceeded its wall-clock budget. Treated
	// as transient by the retry policy.
	ErrTimeout = errors.New("job timed out")
)

// EncodeError describes a transcode engine failure. Transient failures
// (resource exhaustion, I/O timeouts) are retried by the job queue;
// fatal ones (bad source, malformed input) are not.
type EncodeError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("encode failed: %s", e.Reason)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// NewEncodeError creates a fatal encode error.
func NewEncodeError(reason string, err error) *EncodeError {
	return &EncodeError{Reason: reason, Err: err}
}

// NewTransientEncodeError creates a retryable encode error.
func NewTransientEncodeError(reason string, err error) *EncodeError {
	return &EncodeError{Reason: reason, Transient: true, Err: err}
}

// StorageError describes an I/O failure against the content store. Always
// fatal for the current job; on the delivery path it maps to a 5xx, never
// to NotFound.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsTransient reports whether a job failure should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var ee *EncodeError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return false
}
