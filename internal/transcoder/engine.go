package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/videoflix/streamcore/pkg/models"
)

// Artifact is the local output of one engine run: a playlist and its
// segments, ordered by index, all inside outDir.
type Artifact struct {
	PlaylistPath string
	SegmentPaths []string
}

// SegmentNames returns the bare segment file names in order.
func (a *Artifact) SegmentNames() []string {
	names := make([]string, len(a.SegmentPaths))
	for i, p := range a.SegmentPaths {
		names[i] = filepath.Base(p)
	}
	return names
}

// Engine produces one rendition from one source. It is a pure function of
// (source, profile, segment duration) apart from encoder nondeterminism:
// repeated runs yield the same segment count and ordering.
type Engine struct {
	ffmpeg         *FFmpeg
	segmentSeconds int
}

// NewEngine creates an engine with the given encoder and target segment
// duration.
func NewEngine(ffmpeg *FFmpeg, segmentSeconds int) *Engine {
	return &Engine{ffmpeg: ffmpeg, segmentSeconds: segmentSeconds}
}

// Transcode encodes sourcePath into outDir as one HLS rendition.
//
// If outDir already holds a complete rendition and overwrite is false, the
// existing artifact is returned without invoking the encoder. With
// overwrite, outDir is cleared and regenerated. On any failure the partial
// output is removed, so a half-written rendition is never left behind.
func (e *Engine) Transcode(ctx context.Context, sourcePath string, profile models.Profile, outDir string, overwrite bool) (*Artifact, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, models.NewEncodeError(fmt.Sprintf("source %s not readable", sourcePath), err)
	}

	playlistPath := filepath.Join(outDir, models.PlaylistName)
	if _, err := os.Stat(playlistPath); err == nil {
		if !overwrite {
			artifact, err := e.collect(outDir)
			if err == nil {
				return artifact, nil
			}
			// Existing output is incomplete; fall through and regenerate.
		}
		if err := clearDir(outDir); err != nil {
			return nil, &models.StorageError{Op: "clear", Key: outDir, Err: err}
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &models.StorageError{Op: "mkdir", Key: outDir, Err: err}
	}

	if err := e.ffmpeg.GenerateHLS(ctx, sourcePath, profile, e.segmentSeconds, outDir); err != nil {
		if cleanupErr := clearDir(outDir); cleanupErr != nil {
			return nil, fmt.Errorf("%w (cleanup also failed: %v)", err, cleanupErr)
		}
		return nil, err
	}

	artifact, err := e.collect(outDir)
	if err != nil {
		if cleanupErr := clearDir(outDir); cleanupErr != nil {
			return nil, fmt.Errorf("%w (cleanup also failed: %v)", err, cleanupErr)
		}
		return nil, err
	}
	return artifact, nil
}

// collect parses the playlist and verifies that every referenced segment
// exists and is non-empty.
func (e *Engine) collect(outDir string) (*Artifact, error) {
	playlistPath := filepath.Join(outDir, models.PlaylistName)
	f, err := os.Open(playlistPath)
	if err != nil {
		return nil, models.NewEncodeError("encoder produced no playlist", err)
	}
	defer f.Close()

	names, err := ParsePlaylist(f)
	if err != nil {
		return nil, models.NewEncodeError("invalid playlist", err)
	}

	artifact := &Artifact{PlaylistPath: playlistPath}
	for _, name := range names {
		p := filepath.Join(outDir, name)
		st, err := os.Stat(p)
		if err != nil {
			return nil, models.NewEncodeError(fmt.Sprintf("segment %s missing", name), err)
		}
		if st.Size() == 0 {
			return nil, models.NewEncodeError(fmt.Sprintf("segment %s is empty", name), nil)
		}
		artifact.SegmentPaths = append(artifact.SegmentPaths, p)
	}
	return artifact, nil
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
