package objectfs

import (
	"context"
	"fmt"

	"github.com/koustreak/objectfs/internal/errs"
	"github.com/koustreak/objectfs/internal/filestore"
	"github.com/koustreak/objectfs/internal/filestore/memory"
	"github.com/koustreak/objectfs/internal/filestore/minio"
	"github.com/koustreak/objectfs/internal/filestore/s3"
	"github.com/koustreak/objectfs/internal/logger"
)

// Open connects to the backend named by cfg.Provider and returns an Adapter
// over cfg.Bucket.
func Open(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to open object store", err, logger.Fields{
			"provider": string(cfg.Provider),
			"endpoint": cfg.Endpoint,
		})
		return nil, err
	}

	log.Info("object store opened", logger.Fields{
		"provider": string(cfg.Provider),
		"endpoint": cfg.Endpoint,
		"bucket":   cfg.Bucket,
	})
	return New(store, cfg.Bucket, log), nil
}

func openStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	switch cfg.Provider {
	case filestore.ProviderMinIO:
		return minio.New(ctx, cfg)
	case filestore.ProviderS3:
		return s3.New(ctx, cfg)
	case filestore.ProviderMemory:
		return memory.New(cfg.Bucket), nil
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}
