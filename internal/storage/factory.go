package storage

import (
	"context"
	"fmt"

	"github.com/nurpe/contracts-service/internal/config"
)

// NewFromConfig creates the Store selected by cfg.Type.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case config.StorageMemory:
		return NewMemoryStore(cfg.PublicPrefix), nil
	case config.StorageLocal, "":
		return NewLocalStore(cfg.Dir, cfg.PublicPrefix)
	case config.StorageS3:
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			KeyPrefix:       cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicPrefix:    cfg.PublicPrefix,
		})
	default:
		return nil, fmt.Errorf("storage: unknown type %q", cfg.Type)
	}
}
