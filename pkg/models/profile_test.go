package models

import (
	"errors"
	"testing"
)

func TestDefaultLadderValid(t *testing.T) {
	if err := DefaultLadder().Validate(); err != nil {
		t.Fatalf("default ladder invalid: %v", err)
	}
}

func TestLadderValidate(t *testing.T) {
	tests := []struct {
		name    string
		ladder  Ladder
		wantErr bool
	}{
		{
			name:    "empty",
			ladder:  Ladder{},
			wantErr: true,
		},
		{
			name: "descending heights",
			ladder: Ladder{
				{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 3_500_000, AudioBitrate: 128_000},
				{Name: "480p", Width: 854, Height: 480, VideoBitrate: 1_500_000, AudioBitrate: 96_000},
			},
			wantErr: true,
		},
		{
			name: "duplicate names",
			ladder: Ladder{
				{Name: "480p", Width: 854, Height: 480, VideoBitrate: 1_500_000, AudioBitrate: 96_000},
				{Name: "480p", Width: 1280, Height: 720, VideoBitrate: 3_500_000, AudioBitrate: 128_000},
			},
			wantErr: true,
		},
		{
			name:   "default",
			ladder: DefaultLadder(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ladder.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLadderByName(t *testing.T) {
	ladder := DefaultLadder()

	p, err := ladder.ByName("720p")
	if err != nil {
		t.Fatalf("ByName(720p): %v", err)
	}
	if p.Height != 720 {
		t.Errorf("expected height 720, got %d", p.Height)
	}

	_, err = ladder.ByName("4k")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown profile, got %v", err)
	}
}

func TestNearestAtOrBelow(t *testing.T) {
	ladder := DefaultLadder()

	tests := []struct {
		sourceHeight int
		want         string
	}{
		{2160, "1080p"},
		{1080, "1080p"},
		{1000, "720p"},
		{720, "720p"},
		{480, "480p"},
		// Below the lowest rung the lowest rung still applies.
		{360, "480p"},
	}
	for _, tt := range tests {
		got := ladder.NearestAtOrBelow(tt.sourceHeight)
		if got.Name != tt.want {
			t.Errorf("NearestAtOrBelow(%d) = %s, want %s", tt.sourceHeight, got.Name, tt.want)
		}
	}
}

func TestFitsSource(t *testing.T) {
	p := Profile{Name: "720p", Height: 720}
	if !p.FitsSource(1080) {
		t.Error("720p should fit a 1080p source")
	}
	if p.FitsSource(480) {
		t.Error("720p should not fit a 480p source")
	}
}
