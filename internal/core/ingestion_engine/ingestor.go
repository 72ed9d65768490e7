package ingestion_engine

import (
	"context"
	"time"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

// Ingestor turns one upload event into one terminal document state.
type Ingestor interface {
	HandleUpload(ctx context.Context, evt models.UploadEvent) error
}

// StateRecorder is the write side the pipeline needs. It is satisfied by
// services.ProcessingService and always goes through the system path.
type StateRecorder interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	BeginProcessing(ctx context.Context, id string, expect *models.ProcessingStatus) (*models.Document, error)
	CompleteProcessing(ctx context.Context, id string, res *core.ExtractionResult) (*models.Document, error)
	FailProcessing(ctx context.Context, id, reason string) (*models.Document, error)
	FailStale(ctx context.Context, id, reason string) (*models.Document, error)
}

// BacklogSource lists the rows the batch runner works through.
type BacklogSource interface {
	GetPendingDocuments(ctx context.Context, limit int) ([]models.Document, error)
	GetStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]models.Document, error)
}
