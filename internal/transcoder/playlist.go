package transcoder

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var segmentNameRe = regexp.MustCompile(`^\d{3,}\.ts$`)

// ParsePlaylist reads an HLS media playlist and returns the referenced
// segment file names in presentation order. Only the encoder's zero-padded
// naming is accepted, which keeps lexical and numeric order aligned and
// shuts out traversal through crafted playlists. The padding is a minimum:
// sources long enough for a four-digit segment count stay valid.
func ParsePlaylist(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var segments []string
	sawHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if line == "#EXTM3U" {
				sawHeader = true
			}
			continue
		}
		if !segmentNameRe.MatchString(line) {
			return nil, fmt.Errorf("unexpected playlist entry %q", line)
		}
		segments = append(segments, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("missing #EXTM3U header")
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("playlist references no segments")
	}
	for i, name := range segments {
		if want := fmt.Sprintf("%03d.ts", i); name != want {
			return nil, fmt.Errorf("playlist entry %d is %q, want %q", i, name, want)
		}
	}
	return segments, nil
}
