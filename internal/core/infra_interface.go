package core

import (
	"context"

	"github.com/markdave123-py/doctext/internal/models"
)

// DbClient defines the persistence operations over the document store.
// Every call carries the scope to filter by; callers decide which scope
// they are entitled to.
type DbClient interface {
	GetDocument(ctx context.Context, id string, scope models.Scope) (*models.Document, error)
	ListDocuments(ctx context.Context, q models.DocumentQuery) ([]models.Document, int, error)

	// SaveDocumentState writes the mutable columns of doc. When expect is
	// non-empty the row must still hold that status. It reports whether a
	// row was written.
	SaveDocumentState(ctx context.Context, doc *models.Document, scope models.Scope, expect models.ProcessingStatus) (bool, error)

	ResolveAccess(ctx context.Context, externalUserID string) (*models.AccessContext, error)

	Close() error
}

// ObjectClient downloads stored binaries.
// It's abstract so S3, MinIO and GCS are interchangeable.
type ObjectClient interface {
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// EventPublisher sends outcome notifications.
type EventPublisher interface {
	PublishProcessed(ctx context.Context, evt models.ProcessedEvent) error
}

// InFlightGuard marks a document as mid-pipeline so a concurrent duplicate
// delivery can be skipped.
type InFlightGuard interface {
	Acquire(ctx context.Context, documentID string) (bool, error)
	Release(ctx context.Context, documentID string) error
}
