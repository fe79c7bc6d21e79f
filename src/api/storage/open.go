package storage

import (
	"context"
	"fmt"

	"github.com/stake-plus/escrow-market/src/api/config"
)

func noopClose(context.Context) error { return nil }

// FromConfig builds the configured backend. The returned close func is
// never nil.
func FromConfig(ctx context.Context, cfg config.StorageConfig) (Store, func(context.Context) error, error) {
	switch cfg.Backend {
	case "", "disk":
		s, err := NewDiskStore(cfg.UploadDir, cfg.MaxUpload)
		if err != nil {
			return nil, noopClose, err
		}
		return s, noopClose, nil
	case "minio":
		s, err := NewMinioStore(ctx, cfg)
		if err != nil {
			return nil, noopClose, err
		}
		return s, noopClose, nil
	case "s3":
		s, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, noopClose, err
		}
		return s, noopClose, nil
	case "gridfs":
		s, err := NewGridFSStore(ctx, cfg)
		if err != nil {
			return nil, noopClose, err
		}
		return s, s.Close, nil
	}
	return nil, noopClose, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
