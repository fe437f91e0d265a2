package storage

import (
	"fmt"

	"github.com/videoflix/streamcore/internal/config"
)

// New builds the configured content store backend.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFSStore(cfg.Root)
	case "minio", "":
		return NewMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
