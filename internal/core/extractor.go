package core

import (
	"context"
)

// ExtractionResult is what a text extractor produces for one file.
type ExtractionResult struct {
	Text       string
	Method     string
	Confidence float64 // 0-100
	WordCount  int
	Pages      int
}

// TextExtractor turns a binary document into plain text.
type TextExtractor interface {
	// Extract parses data. The mimeType and filename pick the parsing strategy.
	Extract(ctx context.Context, data []byte, mimeType, filename string) (*ExtractionResult, error)

	// IsAcceptable is the extractor's own quality gate.
	IsAcceptable(res *ExtractionResult) bool
}
