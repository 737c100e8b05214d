package blob

import (
	"context"
	"fmt"

	"diskuto/internal/config"
)

// NewFromConfig builds a Store from the operator's tagged-union
// BlobStoreConfig.
func NewFromConfig(ctx context.Context, cfg config.BlobStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "filesystem":
		fs := NewFilesystemStore(cfg.Root)
		if err := fs.ValidateSetup(); err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Region: cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}
