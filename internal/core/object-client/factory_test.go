package objectclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfg "github.com/markdave123-py/doctext/internal/config"
)

func TestNewObjectClientFailureIsUntypedNil(t *testing.T) {
	tests := []struct {
		name string
		conf cfg.Config
	}{
		{"unknown provider", cfg.Config{StorageProvider: "ftp"}},
		{"minio without endpoint", cfg.Config{StorageProvider: "minio"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewObjectClient(context.Background(), &tt.conf, zap.NewNop())
			require.Error(t, err)
			// A typed nil inside the interface would compare unequal to nil.
			assert.True(t, client == nil)
		})
	}
}

func TestGCSClientCloseOnNil(t *testing.T) {
	var c *GCSClient
	assert.NoError(t, c.Close())
	assert.NoError(t, (&GCSClient{}).Close())
}
