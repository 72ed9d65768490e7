package models

import (
	"fmt"
	"time"
)

// UploadEvent is the body of a document.uploaded message.
type UploadEvent struct {
	DocumentID string     `json:"document_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	FilePath   string     `json:"file_path"`
	BucketName string     `json:"bucket_name"`
	Filename   string     `json:"filename"`
	MimeType   string     `json:"mime_type"`
	FileSize   int64      `json:"file_size"`
	UploadedAt time.Time  `json:"uploaded_at"`
	UploadedBy string     `json:"uploaded_by"`
}

// Validate checks the fields the pipeline cannot work without.
func (e UploadEvent) Validate() error {
	if e.DocumentID == "" {
		return fmt.Errorf("upload event: document_id is required")
	}
	return nil
}

// EventFromDocument maps a stored row to the event shape the pipeline
// consumes. The row's content_type column becomes MimeType and storage_path
// becomes FilePath.
func EventFromDocument(d *Document) UploadEvent {
	return UploadEvent{
		DocumentID: d.ID,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		FilePath:   d.StoragePath,
		BucketName: d.BucketName,
		Filename:   d.Filename,
		MimeType:   d.MimeType,
		FileSize:   d.FileSize,
		UploadedAt: d.CreatedAt,
		UploadedBy: "system",
	}
}

// FillFrom copies location fields the event left empty from the stored row.
func (e UploadEvent) FillFrom(d *Document) UploadEvent {
	if d == nil {
		return e
	}
	row := EventFromDocument(d)
	if e.FilePath == "" {
		e.FilePath = row.FilePath
	}
	if e.BucketName == "" {
		e.BucketName = row.BucketName
	}
	if e.Filename == "" {
		e.Filename = row.Filename
	}
	if e.MimeType == "" {
		e.MimeType = row.MimeType
	}
	if e.EntityType == "" {
		e.EntityType = row.EntityType
	}
	if e.EntityID == "" {
		e.EntityID = row.EntityID
	}
	if e.FileSize == 0 {
		e.FileSize = row.FileSize
	}
	return e
}

// ProcessedEvent is the body of a document.processed message.
type ProcessedEvent struct {
	ID                      string           `json:"id"`
	DocumentID              string           `json:"document_id"`
	EntityType              EntityType       `json:"entity_type"`
	EntityID                string           `json:"entity_id"`
	ProcessingStatus        ProcessingStatus `json:"processing_status"`
	TextLength              int              `json:"text_length"`
	StructuredDataAvailable bool             `json:"structured_data_available"`
	EmbeddingGenerated      bool             `json:"embedding_generated"`
	ProcessedAt             time.Time        `json:"processed_at"`
	ProcessingTimeMs        int64            `json:"processing_time_ms"`
	Error                   string           `json:"error,omitempty"`
	Timestamp               time.Time        `json:"timestamp"`
}

// NewProcessedEvent builds the outcome notification for one attempt.
func NewProcessedEvent(evt UploadEvent, status ProcessingStatus, textLength int, started, finished time.Time, errMsg string) ProcessedEvent {
	return ProcessedEvent{
		ID:               fmt.Sprintf("%s-processed-%d", evt.DocumentID, finished.UnixMilli()),
		DocumentID:       evt.DocumentID,
		EntityType:       evt.EntityType,
		EntityID:         evt.EntityID,
		ProcessingStatus: status,
		TextLength:       textLength,
		ProcessedAt:      finished,
		ProcessingTimeMs: finished.Sub(started).Milliseconds(),
		Error:            errMsg,
		Timestamp:        finished,
	}
}
