package main

import (
	"context"
	"fmt"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/storage"
	"github.com/mivahub/mivahub-backend/pkg/storage/gcs"
	"github.com/mivahub/mivahub-backend/pkg/storage/s3"
)

type pingableStore interface {
	storage.ObjectStore
	Ping(ctx context.Context) error
}

func newObjectStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (pingableStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendGCS:
		return gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	case config.StorageBackendS3:
		return s3.NewClient(ctx, cfg.S3, logg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
