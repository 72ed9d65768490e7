package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	cfg "github.com/markdave123-py/doctext/internal/config"
	"github.com/markdave123-py/doctext/internal/core"
)

type GCSClient struct {
	client *storage.Client
}

var _ core.ObjectClient = (*GCSClient)(nil)

// NewGCSClient uses GCS_CREDENTIALS_FILE when set and application default
// credentials otherwise.
func NewGCSClient(ctx context.Context, cfg *cfg.Config, logger *zap.Logger) (*GCSClient, error) {
	var opts []option.ClientOption
	if cfg.GCSCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client init: %w", err)
	}

	logger.Info("gcs client ready")
	return &GCSClient{client: client}, nil
}

func (c *GCSClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("gcs get failed: %w", err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *GCSClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
