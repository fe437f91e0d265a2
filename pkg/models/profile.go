package models

import (
	"fmt"
	"strings"
)

// Profile defines one rung of the transcode ladder: a named resolution and
// bitrate pair. The set of profiles is closed and ordered; it is loaded once
// from configuration and validated there, so a Profile reaching any component
// is always a member of the ladder.
type Profile struct {
	Name         string `json:"name" mapstructure:"name"`
	Width        int    `json:"width" mapstructure:"width"`
	Height       int    `json:"height" mapstructure:"height"`
	VideoBitrate int64  `json:"video_bitrate" mapstructure:"videoBitrate"`
	AudioBitrate int    `json:"audio_bitrate" mapstructure:"audioBitrate"`
}

// Ladder is the ordered profile set, lowest quality first. The order defines
// client-side quality fallback and the order of List results.
type Ladder []Profile

// DefaultLadder returns the stock 480p/720p/1080p ladder.
func DefaultLadder() Ladder {
	return Ladder{
		{Name: "480p", Width: 854, Height: 480, VideoBitrate: 1_500_000, AudioBitrate: 96_000},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 3_500_000, AudioBitrate: 128_000},
		{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: 6_500_000, AudioBitrate: 128_000},
	}
}

// Validate checks that the ladder is non-empty, strictly ascending by height
// and free of duplicate names.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("profile ladder is empty")
	}
	seen := make(map[string]struct{}, len(l))
	prevHeight := 0
	for _, p := range l {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("profile with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate profile %q", name)
		}
		seen[name] = struct{}{}
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("profile %q: invalid dimensions %dx%d", name, p.Width, p.Height)
		}
		if p.Height <= prevHeight {
			return fmt.Errorf("profile %q: ladder must ascend by height", name)
		}
		prevHeight = p.Height
		if p.VideoBitrate <= 0 {
			return fmt.Errorf("profile %q: invalid video bitrate %d", name, p.VideoBitrate)
		}
	}
	return nil
}

// ByName returns the profile with the given name.
func (l Ladder) ByName(name string) (Profile, error) {
	for _, p := range l {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("profile %q: %w", name, ErrNotFound)
}

// Names returns the profile names in ladder order.
func (l Ladder) Names() []string {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.Name
	}
	return names
}

// NearestAtOrBelow returns the highest profile whose height does not exceed
// sourceHeight. When even the lowest rung exceeds the source, the lowest rung
// is returned so every video gets at least one rendition.
func (l Ladder) NearestAtOrBelow(sourceHeight int) Profile {
	best := l[0]
	for _, p := range l {
		if p.Height <= sourceHeight {
			best = p
		}
	}
	return best
}

// FitsSource reports whether encoding p from a source of the given height
// would upscale. The transcoder caps oversized profiles to a lower rung
// instead of upscaling.
func (p Profile) FitsSource(sourceHeight int) bool {
	return p.Height <= sourceHeight
}
