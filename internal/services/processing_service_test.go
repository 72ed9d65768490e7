package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

func statusOf(s models.ProcessingStatus) *models.ProcessingStatus { return &s }

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.ProcessingStatus
		want     bool
	}{
		{models.StatusPending, models.StatusProcessing, true},
		{models.StatusPending, models.StatusProcessed, false},
		{models.StatusPending, models.StatusFailed, false},
		{models.StatusProcessing, models.StatusProcessed, true},
		{models.StatusProcessing, models.StatusFailed, true},
		{models.StatusProcessing, models.StatusPending, false},
		{models.StatusProcessed, models.StatusPending, false},
		{models.StatusFailed, models.StatusPending, false},
		{models.StatusProcessed, models.StatusProcessing, true},
		{models.StatusFailed, models.StatusProcessing, true},
		{models.StatusProcessed, models.StatusFailed, false},
		{models.StatusFailed, models.StatusFailed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestUpdateDocumentValidation(t *testing.T) {
	_, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)
	ctx := context.Background()

	tests := []struct {
		name  string
		id    string
		patch models.DocumentPatch
		want  error
	}{
		{"unknown status", "d-cand", models.DocumentPatch{ProcessingStatus: statusOf("done")}, models.ErrInvalidStatus},
		{"text too large", "d-cand", models.DocumentPatch{ExtractedText: strPtr(strings.Repeat("a", models.MaxExtractedTextLength+1))}, models.ErrTextTooLarge},
		{"skip processing", "d-cand", models.DocumentPatch{ProcessingStatus: statusOf(models.StatusProcessed), ExtractedText: strPtr("x")}, models.ErrInvalidTransition},
		{"error without failed", "d-cand", models.DocumentPatch{ProcessingStatus: statusOf(models.StatusProcessing), ProcessingError: strPtr("x")}, models.ErrInvalidPatch},
		{"outside scope", "d-other-cand", models.DocumentPatch{ProcessingStatus: statusOf(models.StatusProcessing)}, models.ErrDocumentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateDocument(ctx, "cand-user", tt.id, tt.patch)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateDocumentTextAtCeilingAccepted(t *testing.T) {
	db, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)
	ctx := context.Background()
	db.SetStatus("d-cand", models.StatusProcessing)

	text := strings.Repeat("a", models.MaxExtractedTextLength)
	doc, err := svc.UpdateDocument(ctx, "cand-user", "d-cand", models.DocumentPatch{
		ProcessingStatus: statusOf(models.StatusProcessed),
		ExtractedText:    &text,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaxExtractedTextLength, *doc.TextLength)
}

func TestUpdateDocumentProcessedNeedsText(t *testing.T) {
	db, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)
	db.SetStatus("d-cand", models.StatusProcessing)

	_, err := svc.UpdateDocument(context.Background(), "cand-user", "d-cand", models.DocumentPatch{ProcessingStatus: statusOf(models.StatusProcessed)})
	assert.ErrorIs(t, err, models.ErrInvalidPatch)
}

func TestUpdateDocumentMergesMetadata(t *testing.T) {
	_, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)
	ctx := context.Background()

	_, err := svc.UpdateDocument(ctx, "cand-user", "d-cand", models.DocumentPatch{Metadata: &models.Metadata{Extra: map[string]any{"a": 1.0}}})
	require.NoError(t, err)
	doc, err := svc.UpdateDocument(ctx, "cand-user", "d-cand", models.DocumentPatch{Metadata: &models.Metadata{Extra: map[string]any{"b": "two"}}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"a": 1.0, "b": "two"}, doc.Metadata.Extra)
	assert.Equal(t, models.StatusPending, doc.ProcessingStatus)
}

func TestMetadataPatchKeepsExtractedText(t *testing.T) {
	db, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)
	ctx := context.Background()
	db.SetStatus("d-cand", models.StatusProcessing)

	_, err := svc.UpdateDocument(ctx, "cand-user", "d-cand", models.DocumentPatch{
		ProcessingStatus: statusOf(models.StatusProcessed),
		ExtractedText:    strPtr("Senior Go engineer"),
	})
	require.NoError(t, err)

	var patch models.DocumentPatch
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":{"pages":3}}`), &patch))
	doc, err := svc.UpdateDocument(ctx, "cand-user", "d-cand", patch)
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessed, doc.ProcessingStatus)
	require.True(t, doc.Metadata.HasExtractedText())
	assert.Equal(t, "Senior Go engineer", *doc.Metadata.Extraction.ExtractedText)
	assert.Equal(t, 3, *doc.Metadata.Extraction.Pages)
	require.NotNil(t, doc.TextLength)
	assert.Equal(t, 18, *doc.TextLength)

	row := mustDoc(t, db, "d-cand")
	assert.True(t, row.Metadata.HasExtractedText())
	assert.Equal(t, 18, *row.TextLength)
}

func TestTerminalDocumentNeverReturnsToPending(t *testing.T) {
	for _, terminal := range []models.ProcessingStatus{models.StatusProcessed, models.StatusFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			db, repo := newFixture(t)
			svc := NewProcessingService(repo, repo)
			db.SetStatus("d-cand", terminal)

			_, err := svc.UpdateDocument(context.Background(), "cand-user", "d-cand",
				models.DocumentPatch{ProcessingStatus: statusOf(models.StatusPending)})
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
			assert.Equal(t, terminal, mustDoc(t, db, "d-cand").ProcessingStatus)
		})
	}
}

func TestSystemHelpers(t *testing.T) {
	db, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)
	ctx := context.Background()

	_, err := svc.BeginProcessing(ctx, "d-other-co", statusOf(models.StatusPending))
	require.NoError(t, err)

	doc, err := svc.CompleteProcessing(ctx, "d-other-co", &core.ExtractionResult{Text: "Company overview deck", Method: "pdf-text", Confidence: 97, WordCount: 3, Pages: 4})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, doc.ProcessingStatus)
	assert.Equal(t, 21, *doc.TextLength)
	assert.Equal(t, 4, *doc.Metadata.Extraction.Pages)

	row := mustDoc(t, db, "d-other-co")
	assert.NotNil(t, row.ProcessingStartedAt)
	assert.NotNil(t, row.ProcessingCompletedAt)

	doc, err = svc.FailProcessing(ctx, "d-cand", "404 object not found")
	require.NoError(t, err)
	assert.Equal(t, "404 object not found", *doc.ProcessingError)

	_, err = svc.FailStale(ctx, "d-other-cand", "abandoned")
	assert.ErrorIs(t, err, models.ErrStatusConflict)
}

func TestCompleteProcessingRejectsHugeText(t *testing.T) {
	_, repo := newFixture(t)
	svc := NewProcessingService(repo, repo)

	_, err := svc.CompleteProcessing(context.Background(), "d-cand", &core.ExtractionResult{Text: strings.Repeat("b", models.MaxExtractedTextLength+1)})
	assert.ErrorIs(t, err, models.ErrTextTooLarge)
}
