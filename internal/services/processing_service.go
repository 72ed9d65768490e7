package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

type ProcessingService struct {
	scoped ScopedDocumentStore
	system SystemDocumentStore
}

func NewProcessingService(scoped ScopedDocumentStore, system SystemDocumentStore) *ProcessingService {
	return &ProcessingService{scoped: scoped, system: system}
}

// allowedTransitions lists the moves a caller may request. A terminal
// document never returns to pending; it can only be re-processed.
var allowedTransitions = map[models.ProcessingStatus][]models.ProcessingStatus{
	models.StatusPending:    {models.StatusProcessing},
	models.StatusProcessing: {models.StatusProcessed, models.StatusFailed},
	models.StatusProcessed:  {models.StatusProcessing},
	models.StatusFailed:     {models.StatusProcessing},
}

func canTransition(from, to models.ProcessingStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidatePatch checks the value-level rules every write path shares.
func ValidatePatch(patch models.DocumentPatch) error {
	if patch.ProcessingStatus != nil && !patch.ProcessingStatus.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, *patch.ProcessingStatus)
	}
	if patch.ExtractedText != nil && utf8.RuneCountInString(*patch.ExtractedText) > models.MaxExtractedTextLength {
		return fmt.Errorf("%w: max %d characters", models.ErrTextTooLarge, models.MaxExtractedTextLength)
	}
	if patch.Metadata != nil {
		if n, ok := patch.Metadata.TextLength(); ok && n > models.MaxExtractedTextLength {
			return fmt.Errorf("%w: max %d characters", models.ErrTextTooLarge, models.MaxExtractedTextLength)
		}
	}
	return nil
}

func patchCarriesText(patch models.DocumentPatch) bool {
	return patch.ExtractedText != nil || (patch.Metadata != nil && patch.Metadata.HasExtractedText())
}

// UpdateDocument applies a caller's patch within their access scope.
func (s *ProcessingService) UpdateDocument(ctx context.Context, userID, id string, patch models.DocumentPatch) (*models.Document, error) {
	if err := ValidatePatch(patch); err != nil {
		return nil, err
	}

	current, err := s.scoped.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	from := current.ProcessingStatus
	to := from
	if patch.ProcessingStatus != nil {
		to = *patch.ProcessingStatus
	}
	if !canTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	if to == models.StatusProcessed && !patchCarriesText(patch) && !current.Metadata.HasExtractedText() {
		return nil, fmt.Errorf("%w: processed requires extracted_text", models.ErrInvalidPatch)
	}
	if patchCarriesText(patch) && to != models.StatusProcessed {
		return nil, fmt.Errorf("%w: extracted_text is only kept on processed documents", models.ErrInvalidPatch)
	}
	if patch.ProcessingError != nil && to != models.StatusFailed {
		return nil, fmt.Errorf("%w: processing_error is only allowed with failed", models.ErrInvalidPatch)
	}

	// The transition was checked against this status, so the write must
	// still see it.
	patch.ExpectStatus = &from
	return s.scoped.Update(ctx, userID, id, patch)
}

// GetDocument reads a row for the pipeline, ignoring access scope.
func (s *ProcessingService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return s.system.GetBySystem(ctx, id)
}

// BeginProcessing moves a document to processing. With a non-nil expect the
// move only happens if the row still holds that status.
func (s *ProcessingService) BeginProcessing(ctx context.Context, id string, expect *models.ProcessingStatus) (*models.Document, error) {
	status := models.StatusProcessing
	return s.system.UpdateBySystem(ctx, id, models.DocumentPatch{
		ProcessingStatus: &status,
		ExpectStatus:     expect,
	})
}

// CompleteProcessing records a successful extraction.
func (s *ProcessingService) CompleteProcessing(ctx context.Context, id string, res *core.ExtractionResult) (*models.Document, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nil extraction result", models.ErrInvalidPatch)
	}
	var (
		text       = res.Text
		method     = res.Method
		confidence = res.Confidence
		words      = res.WordCount
		pages      = res.Pages
	)
	patch := models.DocumentPatch{
		ProcessingStatus: statusPtr(models.StatusProcessed),
		Metadata: &models.Metadata{Extraction: &models.ExtractionMetadata{
			ExtractedText:        &text,
			ExtractionMethod:     &method,
			ExtractionConfidence: &confidence,
			WordCount:            &words,
			Pages:                &pages,
		}},
	}
	if err := ValidatePatch(patch); err != nil {
		return nil, err
	}
	return s.system.UpdateBySystem(ctx, id, patch)
}

// FailProcessing records a failed attempt with its reason.
func (s *ProcessingService) FailProcessing(ctx context.Context, id, reason string) (*models.Document, error) {
	return s.system.UpdateBySystem(ctx, id, models.DocumentPatch{
		ProcessingStatus: statusPtr(models.StatusFailed),
		ProcessingError:  &reason,
	})
}

// FailStale fails a document only if it is still processing.
func (s *ProcessingService) FailStale(ctx context.Context, id, reason string) (*models.Document, error) {
	return s.system.UpdateBySystem(ctx, id, models.DocumentPatch{
		ProcessingStatus: statusPtr(models.StatusFailed),
		ProcessingError:  &reason,
		ExpectStatus:     statusPtr(models.StatusProcessing),
	})
}

func statusPtr(s models.ProcessingStatus) *models.ProcessingStatus {
	return &s
}
