package models

import (
	"time"
)

// ProcessingStatus is the pipeline state of a document.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is one of the four known states.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is processed or failed.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// EntityType identifies the business object that owns a document.
type EntityType string

const (
	EntityApplication EntityType = "application"
	EntityCandidate   EntityType = "candidate"
	EntityJob         EntityType = "job"
	EntityCompany     EntityType = "company"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityApplication, EntityCandidate, EntityJob, EntityCompany:
		return true
	}
	return false
}

// MaxExtractedTextLength is the hard ceiling, in characters, for extracted text.
const MaxExtractedTextLength = 1_000_000

// Document is one uploaded file and its extraction state.
type Document struct {
	ID          string `db:"id" json:"id"`
	BucketName  string `db:"bucket_name" json:"bucket_name"`
	StoragePath string `db:"storage_path" json:"storage_path"`
	Filename    string `db:"filename" json:"filename"`
	MimeType    string `db:"content_type" json:"mime_type"` // persisted as content_type
	FileSize    int64  `db:"file_size" json:"file_size"`

	EntityType EntityType `db:"entity_type" json:"entity_type"`
	EntityID   string     `db:"entity_id" json:"entity_id"`
	CompanyID  *string    `db:"company_id" json:"company_id,omitempty"`

	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	Metadata         Metadata         `db:"metadata" json:"metadata"`
	TextLength       *int             `db:"text_length" json:"text_length,omitempty"`
	ProcessingError  *string          `db:"processing_error" json:"processing_error,omitempty"`

	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
	ProcessingStartedAt   *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
}

// DocumentPatch is a partial update. Nil fields are left untouched.
//
// ExtractedText is a convenience alias that lands in Metadata.Extraction and
// derives TextLength. ExpectStatus makes the write conditional on the stored
// status.
type DocumentPatch struct {
	ProcessingStatus *ProcessingStatus `json:"processing_status,omitempty"`
	Metadata         *Metadata         `json:"metadata,omitempty"`
	ExtractedText    *string           `json:"extracted_text,omitempty"`
	ProcessingError  *string           `json:"processing_error,omitempty"`
	ExpectStatus     *ProcessingStatus `json:"-"`
}

// DocumentFilter narrows a list query. Zero values mean "no filter".
type DocumentFilter struct {
	ProcessingStatus ProcessingStatus
	EntityType       EntityType
	EntityID         string
	Search           string
	StartedBefore    *time.Time
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a 1-indexed page.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes total pages for a normalized request.
func NewPagination(p PageRequest, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// DocumentQuery is what the store executes: filter, scope and window.
type DocumentQuery struct {
	Scope  Scope
	Filter DocumentFilter
	Limit  int
	Offset int
}
