package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", fmt.Errorf("job: %w", ErrTimeout), true},
		{"transient encode", NewTransientEncodeError("oom", nil), true},
		{"fatal encode", NewEncodeError("bad input", nil), false},
		{"wrapped transient encode", fmt.Errorf("job: %w", NewTransientEncodeError("oom", nil)), true},
		{"storage", &StorageError{Op: "put", Key: "k", Err: errors.New("disk")}, false},
		{"not found", ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewEncodeError("encoder exited", cause)
	if !errors.Is(err, cause) {
		t.Error("EncodeError should unwrap to its cause")
	}
}

func TestJobTerminal(t *testing.T) {
	for _, status := range []string{JobStatusSucceeded, JobStatusFailed, JobStatusCancelled} {
		j := Job{Status: status}
		if !j.Terminal() {
			t.Errorf("status %s should be terminal", status)
		}
		if j.Active() {
			t.Errorf("status %s should not be active", status)
		}
	}
	for _, status := range []string{JobStatusQueued, JobStatusRunning} {
		j := Job{Status: status}
		if j.Terminal() {
			t.Errorf("status %s should not be terminal", status)
		}
		if !j.Active() {
			t.Errorf("status %s should be active", status)
		}
	}
}

func TestSegmentNaming(t *testing.T) {
	if got := SegmentName(0); got != "000.ts" {
		t.Errorf("SegmentName(0) = %s", got)
	}
	if got := SegmentName(42); got != "042.ts" {
		t.Errorf("SegmentName(42) = %s", got)
	}
	if got := SegmentKey("v1", "720p", 3); got != "hls/v1/720p/003.ts" {
		t.Errorf("SegmentKey = %s", got)
	}
	if got := PlaylistKey("v1", "720p"); got != "hls/v1/720p/index.m3u8" {
		t.Errorf("PlaylistKey = %s", got)
	}
}
