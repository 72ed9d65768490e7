package ingestion_engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/core"
)

func discardLogger() *zap.Logger {
	return zap.NewNop()
}

func TestDocconvExtractorPlainText(t *testing.T) {
	e := NewDocconvExtractor(30, 5, discardLogger())

	res, err := e.Extract(context.Background(), []byte("  Senior Go engineer with ten years of experience \n"), "text/plain; charset=utf-8", "cv.txt")
	require.NoError(t, err)

	assert.Equal(t, "Senior Go engineer with ten years of experience", res.Text)
	assert.Equal(t, "plain-text", res.Method)
	assert.Equal(t, 8, res.WordCount)
	assert.Equal(t, 100.0, res.Confidence)
	assert.True(t, e.IsAcceptable(res))
}

func TestDocconvExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDocconvExtractor(30, 5, discardLogger()).Extract(ctx, []byte("x"), "text/plain", "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsAcceptable(t *testing.T) {
	e := NewDocconvExtractor(30, 3, discardLogger())

	tests := []struct {
		name string
		res  *core.ExtractionResult
		want bool
	}{
		{"nil", nil, false},
		{"empty", &core.ExtractionResult{Confidence: 100}, false},
		{"low confidence", &core.ExtractionResult{Confidence: 10, WordCount: 50}, false},
		{"too few words", &core.ExtractionResult{Confidence: 90, WordCount: 2}, false},
		{"good", &core.ExtractionResult{Confidence: 90, WordCount: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.IsAcceptable(tt.res))
		})
	}
}

func TestExtractionMethod(t *testing.T) {
	assert.Equal(t, "pdf-text", extractionMethod(normalizeMimeType("application/pdf", "")))
	assert.Equal(t, "docx", extractionMethod(normalizeMimeType("", "resume.docx")))
	assert.Equal(t, "plain-text", extractionMethod(normalizeMimeType("TEXT/Markdown", "")))
	assert.Equal(t, "docconv", extractionMethod("application/octet-stream"))
}

func TestTextConfidence(t *testing.T) {
	assert.Equal(t, 0.0, textConfidence(""))
	assert.Equal(t, 50.0, textConfidence("ab#$"))
}
