package storage

import (
	"context"
	"io"
	"path/filepath"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// Object is an open handle on a stored object. Seekability is part of the
// contract: the delivery service serves byte-range requests straight off it.
type Object interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Store is the content store boundary. Keys are slash-separated paths
// (sources under videos/, rendition trees under hls/<video>/<profile>/).
// Implementations carry no business logic.
type Store interface {
	// Put writes an object. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// PutFile uploads a local file.
	PutFile(ctx context.Context, key, path string) error
	// Open returns a seekable handle plus object info.
	// Missing keys wrap models.ErrNotFound.
	Open(ctx context.Context, key string) (Object, ObjectInfo, error)
	// Stat returns object info without opening the payload.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// FetchFile downloads an object to a local file.
	FetchFile(ctx context.Context, key, path string) error
	// List returns all keys under a prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// RemovePrefix deletes every object under a prefix. Removing a
	// non-existent prefix is not an error.
	RemovePrefix(ctx context.Context, prefix string) error
}

// ContentTypeFor returns the content type for a stored media file.
func ContentTypeFor(key string) string {
	switch filepath.Ext(key) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	default:
		return "application/octet-stream"
	}
}
