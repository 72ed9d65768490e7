package objectclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	cfg "github.com/markdave123-py/doctext/internal/config"
	"github.com/markdave123-py/doctext/internal/core"
)

var ErrObjectNotFound = errors.New("object not found")

// NewObjectClient picks the backend named by STORAGE_PROVIDER. On error the
// returned interface is nil, never a nil *Client wrapped in it.
func NewObjectClient(ctx context.Context, cfg *cfg.Config, logger *zap.Logger) (core.ObjectClient, error) {
	switch cfg.StorageProvider {
	case "s3":
		c, err := NewS3Client(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "minio":
		c, err := NewMinioClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "gcs":
		c, err := NewGCSClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported storage provider %q", cfg.StorageProvider)
}
