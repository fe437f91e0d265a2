package models

import (
	"fmt"
	"path"
	"time"
)

// Rendition is one complete, independently playable HLS encoding of a video
// at a fixed profile: a playlist plus its ordered segment files. A rendition
// is never partially visible; the catalog registers it only after every
// artifact is durably written.
type Rendition struct {
	VideoID     string    `json:"video_id" db:"video_id"`
	Profile     string    `json:"profile" db:"profile"`
	PlaylistKey string    `json:"playlist_key" db:"playlist_key"`
	SegmentKeys []string  `json:"segment_keys" db:"segment_keys"`
	Ready       bool      `json:"ready" db:"ready"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PlaylistName is the playlist filename inside every rendition directory.
const PlaylistName = "index.m3u8"

// RenditionPrefix returns the storage prefix holding one rendition tree,
// hls/<video>/<profile>/.
func RenditionPrefix(videoID, profile string) string {
	return path.Join("hls", videoID, profile) + "/"
}

// PlaylistKey returns the storage key of a rendition playlist.
func PlaylistKey(videoID, profile string) string {
	return path.Join("hls", videoID, profile, PlaylistName)
}

// SegmentName returns the canonical segment filename for an index. Zero
// padding keeps lexical and numeric order aligned.
func SegmentName(index int) string {
	return fmt.Sprintf("%03d.ts", index)
}

// SegmentKey returns the storage key of one segment.
func SegmentKey(videoID, profile string, index int) string {
	return path.Join("hls", videoID, profile, SegmentName(index))
}

// SegmentCount returns the number of segments in the rendition.
func (r *Rendition) SegmentCount() int {
	return len(r.SegmentKeys)
}
