package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/videoflix/streamcore/internal/logging"
	"github.com/videoflix/streamcore/internal/storage"
	"github.com/videoflix/streamcore/pkg/models"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewLogger(logging.Config{Level: "disabled"})
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func newTestCatalog(t *testing.T) (*Catalog, *MemoryRenditionStore, storage.Store) {
	t.Helper()
	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemoryRenditionStore()
	return New(store, blobs, models.DefaultLadder(), testLogger(t)), store, blobs
}

// putRendition writes a complete rendition tree into the store and returns
// the matching record.
func putRendition(t *testing.T, blobs storage.Store, videoID, profile string, segments int) *models.Rendition {
	t.Helper()
	ctx := context.Background()
	r := &models.Rendition{
		VideoID:     videoID,
		Profile:     profile,
		PlaylistKey: models.PlaylistKey(videoID, profile),
	}
	for i := 0; i < segments; i++ {
		key := models.SegmentKey(videoID, profile, i)
		if err := blobs.Put(ctx, key, strings.NewReader("segment-data"), -1, ""); err != nil {
			t.Fatal(err)
		}
		r.SegmentKeys = append(r.SegmentKeys, key)
	}
	if err := blobs.Put(ctx, r.PlaylistKey, strings.NewReader("#EXTM3U\n"), -1, ""); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegisterAndLookup(t *testing.T) {
	cat, _, blobs := newTestCatalog(t)
	ctx := context.Background()

	r := putRendition(t, blobs, "v1", "720p", 3)
	if err := cat.Register(ctx, r); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := cat.Lookup(ctx, "v1", "720p")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got.Ready {
		t.Error("registered rendition must be ready")
	}
	if got.SegmentCount() != 3 {
		t.Errorf("segment count = %d", got.SegmentCount())
	}
}

func TestLookupUnknown(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	if _, err := cat.Lookup(context.Background(), "v1", "720p"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterRejectsIncompleteTree(t *testing.T) {
	cat, store, blobs := newTestCatalog(t)
	ctx := context.Background()

	r := putRendition(t, blobs, "v1", "720p", 3)
	// Knock out one segment.
	if err := blobs.RemovePrefix(ctx, r.SegmentKeys[1]); err != nil {
		t.Fatal(err)
	}

	if err := cat.Register(ctx, r); err == nil {
		t.Fatal("expected verification failure")
	}
	if _, err := cat.Lookup(ctx, "v1", "720p"); !errors.Is(err, models.ErrNotFound) {
		t.Error("failed registration must not be visible")
	}
	saved, err := store.ListRenditions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 0 {
		t.Error("failed registration must not be persisted")
	}
}

func TestRegisterRejectsEmptyArtifact(t *testing.T) {
	cat, _, blobs := newTestCatalog(t)
	ctx := context.Background()

	r := putRendition(t, blobs, "v1", "720p", 2)
	// Truncate a segment to zero bytes.
	if err := blobs.Put(ctx, r.SegmentKeys[0], strings.NewReader(""), -1, ""); err != nil {
		t.Fatal(err)
	}
	if err := cat.Register(ctx, r); err == nil {
		t.Error("expected rejection of empty segment")
	}
}

func TestRegisterRejectsUnknownProfile(t *testing.T) {
	cat, _, blobs := newTestCatalog(t)
	r := putRendition(t, blobs, "v1", "720p", 1)
	r.Profile = "4k"
	if err := cat.Register(context.Background(), r); err == nil {
		t.Error("expected rejection of profile outside the ladder")
	}
}

func TestListInLadderOrder(t *testing.T) {
	cat, _, blobs := newTestCatalog(t)
	ctx := context.Background()

	// Registered out of order.
	for _, profile := range []string{"1080p", "480p"} {
		if err := cat.Register(ctx, putRendition(t, blobs, "v1", profile, 1)); err != nil {
			t.Fatal(err)
		}
	}

	profiles, err := cat.List(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 || profiles[0] != "480p" || profiles[1] != "1080p" {
		t.Errorf("List = %v, want ladder order [480p 1080p]", profiles)
	}
}

func TestLoadRebuildsIndex(t *testing.T) {
	cat, store, blobs := newTestCatalog(t)
	ctx := context.Background()

	if err := cat.Register(ctx, putRendition(t, blobs, "v1", "720p", 2)); err != nil {
		t.Fatal(err)
	}

	// A fresh process over the same durable store.
	reloaded := New(store, blobs, models.DefaultLadder(), testLogger(t))
	if _, err := reloaded.Lookup(ctx, "v1", "720p"); !errors.Is(err, models.ErrNotFound) {
		t.Error("index must be empty before Load")
	}
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := reloaded.Lookup(ctx, "v1", "720p"); err != nil {
		t.Errorf("Lookup after Load: %v", err)
	}
}

func TestCrashBeforeRegisterLeavesNothing(t *testing.T) {
	_, store, blobs := newTestCatalog(t)
	ctx := context.Background()

	// Artifacts uploaded but the process died before Register.
	putRendition(t, blobs, "v1", "720p", 2)

	reloaded := New(store, blobs, models.DefaultLadder(), testLogger(t))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := reloaded.Lookup(ctx, "v1", "720p"); !errors.Is(err, models.ErrNotFound) {
		t.Error("unregistered artifacts must stay invisible")
	}
}

func TestRemove(t *testing.T) {
	cat, _, blobs := newTestCatalog(t)
	ctx := context.Background()

	if err := cat.Register(ctx, putRendition(t, blobs, "v1", "720p", 1)); err != nil {
		t.Fatal(err)
	}
	if err := cat.Remove(ctx, "v1", "720p"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := cat.Lookup(ctx, "v1", "720p"); !errors.Is(err, models.ErrNotFound) {
		t.Error("removed rendition still visible")
	}
	if err := cat.Remove(ctx, "v1", "720p"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeat remove, got %v", err)
	}
}

func TestRemoveVideo(t *testing.T) {
	cat, _, blobs := newTestCatalog(t)
	ctx := context.Background()

	for _, profile := range []string{"480p", "720p"} {
		if err := cat.Register(ctx, putRendition(t, blobs, "v1", profile, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := cat.RemoveVideo(ctx, "v1"); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}
	profiles, err := cat.List(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 0 {
		t.Errorf("renditions survived video removal: %v", profiles)
	}
}
