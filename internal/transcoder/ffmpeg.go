package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/videoflix/streamcore/pkg/models"
)

// CommandRunner executes an external command and returns its captured
// stderr. Swapped out in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

func execRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.String(), errBuf.String(), err
}

// FFmpeg wraps the external encoder and prober.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	run         CommandRunner
}

// NewFFmpeg creates a new FFmpeg instance shelling out to the given
// binaries.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		run:         execRunner,
	}
}

// SourceInfo holds the probe results the pipeline cares about.
type SourceInfo struct {
	Width    int
	Height   int
	Duration float64
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe extracts source dimensions and duration via ffprobe. A source that
// cannot be probed is malformed and fails fast, without retry.
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*SourceInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	stdout, stderr, err := f.run(ctx, f.ffprobePath, args...)
	if err != nil {
		return nil, models.NewEncodeError(fmt.Sprintf("ffprobe failed: %s", firstLine(stderr)), err)
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		return nil, models.NewEncodeError("unparseable ffprobe output", err)
	}

	info := &SourceInfo{}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	if info.Height == 0 {
		return nil, models.NewEncodeError("source has no video stream", nil)
	}
	return info, nil
}

// GenerateHLS encodes one rendition into outDir: index.m3u8 plus NNN.ts
// segments. The argument set matches the production ladder: H.264 veryfast
// CRF 23, stereo AAC, VOD playlist with independent segments, scaled to the
// profile height with the width following the source aspect ratio.
func (f *FFmpeg) GenerateHLS(ctx context.Context, inputPath string, profile models.Profile, segmentSeconds int, outDir string) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=-2:%d", profile.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-b:v", strconv.FormatInt(profile.VideoBitrate, 10),
		"-maxrate", strconv.FormatInt(profile.VideoBitrate*12/10, 10),
		"-bufsize", strconv.FormatInt(profile.VideoBitrate*2, 10),
		"-c:a", "aac",
		"-ac", "2",
		"-b:a", strconv.Itoa(profile.AudioBitrate),
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outDir, "%03d.ts"),
		filepath.Join(outDir, models.PlaylistName),
	}

	_, stderr, err := f.run(ctx, f.ffmpegPath, args...)
	if err != nil {
		return classifyEncodeFailure(err, stderr)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
