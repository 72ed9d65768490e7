package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

// ScopedDocumentStore is the caller-facing path. Every method resolves the
// caller's access context first and never touches rows outside it.
type ScopedDocumentStore interface {
	Access(ctx context.Context, userID string) (*models.AccessContext, error)
	List(ctx context.Context, userID string, filter models.DocumentFilter, page models.PageRequest) ([]models.Document, models.Pagination, error)
	Get(ctx context.Context, userID, id string) (*models.Document, error)
	Update(ctx context.Context, userID, id string, patch models.DocumentPatch) (*models.Document, error)
	CountPending(ctx context.Context, userID string) (int, error)
}

// SystemDocumentStore bypasses access scoping. Only the processing pipeline
// and the batch runner hold one.
type SystemDocumentStore interface {
	GetBySystem(ctx context.Context, id string) (*models.Document, error)
	UpdateBySystem(ctx context.Context, id string, patch models.DocumentPatch) (*models.Document, error)
	GetPendingDocuments(ctx context.Context, limit int) ([]models.Document, error)
	GetStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]models.Document, error)
}

type DocumentRepository struct {
	db  core.DbClient
	now func() time.Time
}

var (
	_ ScopedDocumentStore = (*DocumentRepository)(nil)
	_ SystemDocumentStore = (*DocumentRepository)(nil)
)

func NewDocumentRepository(db core.DbClient) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Access(ctx context.Context, userID string) (*models.AccessContext, error) {
	if userID == "" {
		return nil, models.ErrAccessDenied
	}
	ac, err := r.db.ResolveAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ac == nil {
		return nil, models.ErrAccessDenied
	}
	return ac, nil
}

func (r *DocumentRepository) scope(ctx context.Context, userID string) (models.Scope, error) {
	ac, err := r.Access(ctx, userID)
	if err != nil {
		return models.Scope{}, err
	}
	return ac.Scope(), nil
}

func (r *DocumentRepository) List(ctx context.Context, userID string, filter models.DocumentFilter, page models.PageRequest) ([]models.Document, models.Pagination, error) {
	scope, err := r.scope(ctx, userID)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	page = page.Normalize()
	docs, total, err := r.db.ListDocuments(ctx, models.DocumentQuery{
		Scope:  scope,
		Filter: filter,
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, models.NewPagination(page, total), nil
}

func (r *DocumentRepository) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	scope, err := r.scope(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, id, scope)
}

func (r *DocumentRepository) Update(ctx context.Context, userID, id string, patch models.DocumentPatch) (*models.Document, error) {
	scope, err := r.scope(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.update(ctx, id, patch, scope)
}

func (r *DocumentRepository) CountPending(ctx context.Context, userID string) (int, error) {
	scope, err := r.scope(ctx, userID)
	if err != nil {
		return 0, err
	}
	_, total, err := r.db.ListDocuments(ctx, models.DocumentQuery{
		Scope:  scope,
		Filter: models.DocumentFilter{ProcessingStatus: models.StatusPending},
		Limit:  1,
	})
	return total, err
}

func (r *DocumentRepository) GetBySystem(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, id, models.SystemScope())
}

func (r *DocumentRepository) UpdateBySystem(ctx context.Context, id string, patch models.DocumentPatch) (*models.Document, error) {
	return r.update(ctx, id, patch, models.SystemScope())
}

func (r *DocumentRepository) GetPendingDocuments(ctx context.Context, limit int) ([]models.Document, error) {
	docs, _, err := r.db.ListDocuments(ctx, models.DocumentQuery{
		Scope:  models.SystemScope(),
		Filter: models.DocumentFilter{ProcessingStatus: models.StatusPending},
		Limit:  limit,
	})
	return docs, err
}

func (r *DocumentRepository) GetStaleProcessing(ctx context.Context, startedBefore time.Time, limit int) ([]models.Document, error) {
	docs, _, err := r.db.ListDocuments(ctx, models.DocumentQuery{
		Scope: models.SystemScope(),
		Filter: models.DocumentFilter{
			ProcessingStatus: models.StatusProcessing,
			StartedBefore:    &startedBefore,
		},
		Limit: limit,
	})
	return docs, err
}

func (r *DocumentRepository) get(ctx context.Context, id string, scope models.Scope) (*models.Document, error) {
	doc, err := r.db.GetDocument(ctx, id, scope)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if doc == nil {
		return nil, models.ErrDocumentNotFound
	}
	return doc, nil
}

// update reads the row under scope, applies the patch and writes it back
// under the same scope.
func (r *DocumentRepository) update(ctx context.Context, id string, patch models.DocumentPatch, scope models.Scope) (*models.Document, error) {
	current, err := r.get(ctx, id, scope)
	if err != nil {
		return nil, err
	}

	var expect models.ProcessingStatus
	if patch.ExpectStatus != nil {
		expect = *patch.ExpectStatus
		if current.ProcessingStatus != expect {
			return nil, fmt.Errorf("%w: %s is %s, expected %s", models.ErrStatusConflict, id, current.ProcessingStatus, expect)
		}
	}

	next, err := ApplyPatch(current, patch, r.now())
	if err != nil {
		return nil, err
	}

	ok, err := r.db.SaveDocumentState(ctx, next, scope, expect)
	if err != nil {
		return nil, err
	}
	if !ok {
		if expect != "" {
			return nil, fmt.Errorf("%w: %s left %s", models.ErrStatusConflict, id, expect)
		}
		return nil, models.ErrDocumentNotFound
	}
	return next, nil
}

// ApplyPatch returns the document that results from patch. It holds the
// lifecycle side effects so every write path shares them.
func ApplyPatch(doc *models.Document, patch models.DocumentPatch, now time.Time) (*models.Document, error) {
	if doc == nil {
		return nil, errors.New("apply patch: nil document")
	}

	next := *doc
	next.Metadata = doc.Metadata.Clone()

	status := doc.ProcessingStatus
	if patch.ProcessingStatus != nil {
		status = *patch.ProcessingStatus
		if !status.Valid() {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
		}
	}

	if patch.Metadata != nil {
		merged, err := models.MergeMetadata(next.Metadata, *patch.Metadata)
		if err != nil {
			return nil, err
		}
		next.Metadata = merged
	}
	if patch.ExtractedText != nil {
		if next.Metadata.Extraction == nil {
			next.Metadata.Extraction = &models.ExtractionMetadata{}
		}
		text := *patch.ExtractedText
		next.Metadata.Extraction.ExtractedText = &text
	}
	if n, ok := next.Metadata.TextLength(); ok && n > models.MaxExtractedTextLength {
		return nil, fmt.Errorf("%w: %d characters", models.ErrTextTooLarge, n)
	}
	if patch.ProcessingError != nil {
		msg := *patch.ProcessingError
		next.ProcessingError = &msg
	}

	if status != doc.ProcessingStatus {
		t := now
		switch status {
		case models.StatusProcessing:
			next.ProcessingStartedAt = &t
			next.ProcessingCompletedAt = nil
			next.ProcessingError = nil
		case models.StatusPending:
			next.ProcessingCompletedAt = nil
			next.ProcessingError = nil
		case models.StatusProcessed, models.StatusFailed:
			next.ProcessingCompletedAt = &t
		}
	}
	next.ProcessingStatus = status

	switch status {
	case models.StatusFailed:
		if next.ProcessingError == nil || *next.ProcessingError == "" {
			msg := "processing failed"
			next.ProcessingError = &msg
		}
	default:
		next.ProcessingError = nil
	}

	if status == models.StatusProcessed {
		n, ok := next.Metadata.TextLength()
		if !ok {
			return nil, fmt.Errorf("%w: processed document %s would lose its extracted_text", models.ErrInvalidPatch, doc.ID)
		}
		next.TextLength = &n
	} else {
		next.Metadata = next.Metadata.WithoutExtractedText()
		next.TextLength = nil
	}

	next.UpdatedAt = now
	return &next, nil
}
