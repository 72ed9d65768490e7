package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode"

	"code.sajari.com/docconv"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/core"
)

var _ core.TextExtractor = (*DocconvExtractor)(nil)

type DocconvExtractor struct {
	minConfidence float64
	minWords      int
	logger        *zap.Logger
}

func NewDocconvExtractor(minConfidence float64, minWords int, logger *zap.Logger) *DocconvExtractor {
	return &DocconvExtractor{minConfidence: minConfidence, minWords: minWords, logger: logger}
}

// Extract converts data to plain text. Plain text formats are decoded
// directly; everything else goes through docconv, which shells out to the
// usual converters (pdftotext, wv, unrtf).
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (*core.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mt := normalizeMimeType(mimeType, filename)
	method := extractionMethod(mt)

	var text string
	if method == "plain-text" {
		text = string(bytes.ToValidUTF8(data, []byte("�")))
	} else {
		res, err := docconv.Convert(bytes.NewReader(data), mt, false)
		if err != nil {
			return nil, fmt.Errorf("docconv %s: %w", mt, err)
		}
		text = res.Body
	}
	text = strings.TrimSpace(text)

	pages := 0
	if method == "pdf-text" {
		n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
		if err != nil {
			e.logger.Warn("pdf page count failed", zap.String("filename", filename), zap.Error(err))
		} else {
			pages = n
		}
	}

	return &core.ExtractionResult{
		Text:       text,
		Method:     method,
		Confidence: textConfidence(text),
		WordCount:  len(strings.Fields(text)),
		Pages:      pages,
	}, nil
}

// IsAcceptable rejects empty output and text that is mostly noise.
func (e *DocconvExtractor) IsAcceptable(res *core.ExtractionResult) bool {
	if res == nil || res.WordCount == 0 {
		return false
	}
	return res.Confidence >= e.minConfidence && res.WordCount >= e.minWords
}

func normalizeMimeType(mimeType, filename string) string {
	if mimeType != "" {
		if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
			return strings.ToLower(mt)
		}
	}
	return docconv.MimeTypeByExtension(filename)
}

func extractionMethod(mimeType string) string {
	switch mimeType {
	case "text/plain", "text/markdown", "text/csv":
		return "plain-text"
	case "application/pdf":
		return "pdf-text"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/msword":
		return "doc"
	case "text/html", "application/xhtml+xml":
		return "html"
	case "application/rtf", "text/rtf":
		return "rtf"
	case "application/vnd.oasis.opendocument.text":
		return "odt"
	case "application/xml", "text/xml":
		return "xml"
	}
	return "docconv"
}

// textConfidence is the share (0-100) of runes that are letters, digits or
// whitespace. Garbled converter output scores low.
func textConfidence(text string) float64 {
	total, clean := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			clean++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(clean) * 100 / float64(total)
}
