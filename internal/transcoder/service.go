package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/internal/tracing"
	"github.com/videoflix/streamcore/pkg/models"
)

// VideoStore resolves video ids to their immutable source reference.
type VideoStore interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
}

// Service turns claimed jobs into registered-ready rendition trees in the
// content store. It is the queue's Processor: fetch source, encode into a
// scratch directory, upload segments first and the playlist last, hand the
// rendition back for registration.
type Service struct {
	blobs   storage.Store
	videos  VideoStore
	ffmpeg  *FFmpeg
	engine  *Engine
	ladder  models.Ladder
	tempDir string
	log     *logging.Logger
}

// NewService creates the transcode service.
func NewService(cfg config.TranscoderConfig, blobs storage.Store, videos VideoStore, ladder models.Ladder, log *logging.Logger) *Service {
	ffmpeg := NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	return &Service{
		blobs:   blobs,
		videos:  videos,
		ffmpeg:  ffmpeg,
		engine:  NewEngine(ffmpeg, cfg.SegmentSeconds),
		ladder:  ladder,
		tempDir: cfg.TempDir,
		log:     log,
	}
}

// Process implements the job queue's Processor contract.
func (s *Service) Process(ctx context.Context, job *models.Job) (*models.Rendition, error) {
	span, ctx := tracing.StartSpan(ctx, "transcode.process")
	defer span.Finish()
	tracing.SetTag(span, "video_id", job.VideoID)
	tracing.SetTag(span, "profile", job.Profile)

	rendition, err := s.process(ctx, job)
	if err != nil {
		tracing.LogError(span, err)
	}
	return rendition, err
}

func (s *Service) process(ctx context.Context, job *models.Job) (*models.Rendition, error) {
	log := s.log.WithJobID(job.ID).WithVideoID(job.VideoID).WithProfile(job.Profile)

	profile, err := s.ladder.ByName(job.Profile)
	if err != nil {
		return nil, models.NewEncodeError(fmt.Sprintf("unknown profile %s", job.Profile), err)
	}
	video, err := s.videos.GetVideo(ctx, job.VideoID)
	if err != nil {
		return nil, models.NewEncodeError(fmt.Sprintf("video %s not found", job.VideoID), err)
	}

	prefix := models.RenditionPrefix(video.ID, profile.Name)
	if job.Overwrite {
		if err := s.blobs.RemovePrefix(ctx, prefix); err != nil {
			return nil, err
		}
	} else {
		// Cache hit: a complete rendition tree in the store short-circuits
		// the encoder entirely.
		if existing, err := s.renditionFromStore(ctx, video.ID, profile.Name); err == nil {
			log.Info("rendition already in store, skipping encode")
			return existing, nil
		}
	}

	scratch := filepath.Join(s.tempDir, job.ID)
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return nil, &models.StorageError{Op: "mkdir", Key: scratch, Err: err}
	}
	defer os.RemoveAll(scratch)

	sourcePath := filepath.Join(scratch, "source"+filepath.Ext(video.SourceKey))
	if err := s.blobs.FetchFile(ctx, video.SourceKey, sourcePath); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewEncodeError(fmt.Sprintf("source %s missing from store", video.SourceKey), err)
		}
		return nil, err
	}

	info, err := s.ffmpeg.Probe(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	// Never upscale: a profile above the source resolution downgrades to
	// the nearest ladder rung at or below it, keeping the requested name so
	// client fallback stays uniform.
	encodeProfile := profile
	if !profile.FitsSource(info.Height) {
		encodeProfile = s.ladder.NearestAtOrBelow(info.Height)
		log.Warnf("source is %dp, encoding %s rendition at %dp", info.Height, profile.Name, encodeProfile.Height)
	}

	outDir := filepath.Join(scratch, profile.Name)
	artifact, err := s.engine.Transcode(ctx, sourcePath, encodeProfile, outDir, true)
	if err != nil {
		return nil, err
	}

	rendition, err := s.upload(ctx, video.ID, profile.Name, artifact)
	if err != nil {
		// Do not leave a partial tree behind; the catalog never saw it,
		// but a later non-overwrite run must not mistake it for complete.
		if cleanupErr := s.blobs.RemovePrefix(ctx, prefix); cleanupErr != nil {
			log.ErrorWithErr("failed to clean partial rendition", cleanupErr)
		}
		return nil, err
	}

	log.Infof("transcoded %d segments", rendition.SegmentCount())
	return rendition, nil
}

// upload copies an artifact into the store, segments first so the playlist
// only ever appears after everything it references.
func (s *Service) upload(ctx context.Context, videoID, profile string, artifact *Artifact) (*models.Rendition, error) {
	rendition := &models.Rendition{
		VideoID:     videoID,
		Profile:     profile,
		PlaylistKey: models.PlaylistKey(videoID, profile),
	}
	for i, segPath := range artifact.SegmentPaths {
		key := models.SegmentKey(videoID, profile, i)
		if err := s.blobs.PutFile(ctx, key, segPath); err != nil {
			return nil, err
		}
		rendition.SegmentKeys = append(rendition.SegmentKeys, key)
	}
	if err := s.blobs.PutFile(ctx, rendition.PlaylistKey, artifact.PlaylistPath); err != nil {
		return nil, err
	}
	return rendition, nil
}

// renditionFromStore rebuilds a Rendition from an existing store tree,
// validating the playlist against the canonical segment naming.
func (s *Service) renditionFromStore(ctx context.Context, videoID, profile string) (*models.Rendition, error) {
	playlistKey := models.PlaylistKey(videoID, profile)
	obj, _, err := s.blobs.Open(ctx, playlistKey)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	names, err := ParsePlaylist(obj)
	if err != nil {
		return nil, fmt.Errorf("stored playlist %s: %w", playlistKey, err)
	}

	rendition := &models.Rendition{
		VideoID:     videoID,
		Profile:     profile,
		PlaylistKey: playlistKey,
	}
	for i := range names {
		key := models.SegmentKey(videoID, profile, i)
		if _, err := s.blobs.Stat(ctx, key); err != nil {
			return nil, fmt.Errorf("stored rendition incomplete: %w", err)
		}
		rendition.SegmentKeys = append(rendition.SegmentKeys, key)
	}
	return rendition, nil
}
