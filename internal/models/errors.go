package models

import "errors"

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidStatus       = errors.New("invalid processing_status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTextTooLarge        = errors.New("extracted_text exceeds maximum length")
	ErrStatusConflict      = errors.New("document status changed concurrently")
	ErrAccessDenied        = errors.New("access denied")
	ErrReservedMetadataKey = errors.New("metadata key is reserved")
	ErrInvalidPatch        = errors.New("invalid document patch")
)
