package storage

import (
	"context"
	"fmt"

	"genhub/internal/config"
	"genhub/internal/domain/ports/adapter"
)

// New builds the configured artifact store. Kind "none" returns nil, in which
// case results record remote file names only.
func New(ctx context.Context, cfg config.StorageConfig) (adapter.ArtifactStore, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "local":
		s, err := NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "minio":
		s, err := NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
}
