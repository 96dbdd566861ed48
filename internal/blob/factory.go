package blob

import (
	"context"
	"errors"
	"fmt"

	"omegraph/internal/config"
	"omegraph/internal/infra/blob/fs"
	"omegraph/internal/infra/blob/memory"
	"omegraph/internal/infra/blob/s3"
)

// ErrDisabled is returned by Open when manifest archiving is turned off.
var ErrDisabled = errors.New("blob storage disabled")

// Open builds the blob store selected by cfg.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.BlobNone:
		return nil, ErrDisabled
	case config.BlobMemory:
		return memory.New(), nil
	case config.BlobFS:
		return fs.New(cfg.FSRoot)
	case config.BlobS3:
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMockS3ForTests exposes the in-memory S3 transport for cross-package tests.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }
