package transcoder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/pkg/models"
)

type fakeVideoStore map[string]*models.Video

func (s fakeVideoStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	v, ok := s[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewLogger(logging.Config{Level: "disabled"})
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func newTestService(t *testing.T, enc *fakeEncoder) (*Service, storage.Store) {
	t.Helper()
	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := blobs.Put(context.Background(), "videos/v1.mp4", strings.NewReader("mp4-bytes"), -1, "video/mp4"); err != nil {
		t.Fatal(err)
	}
	videos := fakeVideoStore{"v1": {ID: "v1", Title: "test", SourceKey: "videos/v1.mp4"}}

	cfg := config.TranscoderConfig{
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		TempDir:        t.TempDir(),
		SegmentSeconds: 10,
	}
	svc := NewService(cfg, blobs, videos, models.DefaultLadder(), testLogger(t))
	svc.ffmpeg.run = enc.run
	return svc, blobs
}

func transcodeJob(profile string, overwrite bool) *models.Job {
	return &models.Job{
		ID:        "job-1",
		VideoID:   "v1",
		Profile:   profile,
		Status:    models.JobStatusRunning,
		Overwrite: overwrite,
	}
}

func TestServiceProcess(t *testing.T) {
	enc := &fakeEncoder{segments: 3, probeOut: probeJSON(1920, 1080)}
	svc, blobs := newTestService(t, enc)
	ctx := context.Background()

	rendition, err := svc.Process(ctx, transcodeJob("720p", false))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if rendition.VideoID != "v1" || rendition.Profile != "720p" {
		t.Errorf("unexpected rendition identity: %+v", rendition)
	}
	if rendition.PlaylistKey != "hls/v1/720p/index.m3u8" {
		t.Errorf("playlist key = %s", rendition.PlaylistKey)
	}
	if len(rendition.SegmentKeys) != 3 {
		t.Fatalf("got %d segment keys", len(rendition.SegmentKeys))
	}

	// Every artifact must be durably in the store under its canonical key.
	if _, err := blobs.Stat(ctx, rendition.PlaylistKey); err != nil {
		t.Errorf("playlist not in store: %v", err)
	}
	for i, key := range rendition.SegmentKeys {
		if key != models.SegmentKey("v1", "720p", i) {
			t.Errorf("segment key %d = %s", i, key)
		}
		if _, err := blobs.Stat(ctx, key); err != nil {
			t.Errorf("segment %s not in store: %v", key, err)
		}
	}
}

func TestServiceProcessCacheHit(t *testing.T) {
	enc := &fakeEncoder{segments: 2, probeOut: probeJSON(1920, 1080)}
	svc, _ := newTestService(t, enc)
	ctx := context.Background()

	first, err := svc.Process(ctx, transcodeJob("720p", false))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Process(ctx, transcodeJob("720p", false))
	if err != nil {
		t.Fatal(err)
	}

	if len(enc.encodeCalls) != 1 {
		t.Errorf("encoder invoked %d times, a stored rendition must be a cache hit", len(enc.encodeCalls))
	}
	if len(second.SegmentKeys) != len(first.SegmentKeys) {
		t.Error("cache hit returned a different rendition")
	}
}

func TestServiceProcessNeverUpscales(t *testing.T) {
	enc := &fakeEncoder{segments: 2, probeOut: probeJSON(854, 480)}
	svc, _ := newTestService(t, enc)

	rendition, err := svc.Process(context.Background(), transcodeJob("1080p", false))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Registered under the requested name, encoded at the source's rung.
	if rendition.Profile != "1080p" {
		t.Errorf("rendition profile = %s, want requested 1080p", rendition.Profile)
	}
	if len(enc.encodeCalls) != 1 {
		t.Fatalf("encoder invoked %d times", len(enc.encodeCalls))
	}
	args := strings.Join(enc.encodeCalls[0], " ")
	if !strings.Contains(args, "scale=-2:480") {
		t.Errorf("expected encode capped at 480p, args:\n%s", args)
	}
}

func TestServiceProcessOverwrite(t *testing.T) {
	enc := &fakeEncoder{segments: 2, probeOut: probeJSON(1920, 1080)}
	svc, blobs := newTestService(t, enc)
	ctx := context.Background()

	if _, err := svc.Process(ctx, transcodeJob("720p", false)); err != nil {
		t.Fatal(err)
	}

	// A leftover from a longer previous encode.
	stale := "hls/v1/720p/009.ts"
	if err := blobs.Put(ctx, stale, strings.NewReader("stale"), -1, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Process(ctx, transcodeJob("720p", true)); err != nil {
		t.Fatal(err)
	}
	if len(enc.encodeCalls) != 2 {
		t.Errorf("encoder invoked %d times, overwrite must re-encode", len(enc.encodeCalls))
	}
	if _, err := blobs.Stat(ctx, stale); !errors.Is(err, models.ErrNotFound) {
		t.Error("stale segment survived the overwrite")
	}
}

func TestServiceProcessMissingSource(t *testing.T) {
	enc := &fakeEncoder{segments: 2, probeOut: probeJSON(1920, 1080)}
	svc, _ := newTestService(t, enc)
	svc.videos = fakeVideoStore{"v1": {ID: "v1", SourceKey: "videos/gone.mp4"}}

	_, err := svc.Process(context.Background(), transcodeJob("720p", false))
	var ee *models.EncodeError
	if !errors.As(err, &ee) || ee.Transient {
		t.Errorf("expected fatal EncodeError for missing source, got %v", err)
	}
}

func TestServiceProcessUnknownProfile(t *testing.T) {
	enc := &fakeEncoder{segments: 2, probeOut: probeJSON(1920, 1080)}
	svc, _ := newTestService(t, enc)

	_, err := svc.Process(context.Background(), transcodeJob("4k", false))
	var ee *models.EncodeError
	if !errors.As(err, &ee) || ee.Transient {
		t.Errorf("expected fatal EncodeError for unknown profile, got %v", err)
	}
}
