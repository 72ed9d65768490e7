package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/doctext/internal/config"
	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

const platformAdminRole = "platform_admin"

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const documentColumns = `
	id, bucket_name, storage_path, filename, content_type, file_size,
	entity_type, entity_id, company_id, processing_status, metadata,
	text_length, processing_error, created_at, updated_at,
	processing_started_at, processing_completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*models.Document, error) {
	var (
		d    models.Document
		meta []byte
	)
	err := s.Scan(
		&d.ID, &d.BucketName, &d.StoragePath, &d.Filename, &d.MimeType, &d.FileSize,
		&d.EntityType, &d.EntityID, &d.CompanyID, &d.ProcessingStatus, &meta,
		&d.TextLength, &d.ProcessingError, &d.CreatedAt, &d.UpdatedAt,
		&d.ProcessingStartedAt, &d.ProcessingCompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocument(ctx context.Context, id string, scope models.Scope) (*models.Document, error) {
	args := []any{id}
	scopeSQL, args := scopeClause(scope, args)

	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND ` + scopeSQL

	d, err := scanDocument(c.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, query models.DocumentQuery) ([]models.Document, int, error) {
	where, args := buildWhere(query.Scope, query.Filter)

	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE ` + where + `
		ORDER BY created_at DESC, id`
	if query.Limit > 0 {
		args = append(args, query.Limit, query.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (c *DatabaseClient) SaveDocumentState(ctx context.Context, doc *models.Document, scope models.Scope, expect models.ProcessingStatus) (bool, error) {
	if doc == nil {
		return false, errors.New("nil document")
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}

	args := []any{
		doc.ID, doc.ProcessingStatus, string(meta), doc.TextLength, doc.ProcessingError,
		doc.UpdatedAt, doc.ProcessingStartedAt, doc.ProcessingCompletedAt,
	}
	scopeSQL, args := scopeClause(scope, args)

	q := `
		UPDATE documents
		SET processing_status = $2,
		    metadata = $3::jsonb,
		    text_length = $4,
		    processing_error = $5,
		    updated_at = $6,
		    processing_started_at = $7,
		    processing_completed_at = $8
		WHERE id = $1 AND ` + scopeSQL
	if expect != "" {
		args = append(args, expect)
		q += fmt.Sprintf(" AND processing_status = $%d", len(args))
	}

	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (c *DatabaseClient) ResolveAccess(ctx context.Context, externalUserID string) (*models.AccessContext, error) {
	const q = `
		SELECT id, role, candidate_id
		FROM users
		WHERE external_id = $1
	`
	var (
		ac          models.AccessContext
		role        string
		candidateID sql.NullString
	)
	err := c.db.QueryRowContext(ctx, q, externalUserID).Scan(&ac.UserID, &role, &candidateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	switch {
	case role == platformAdminRole:
		ac.Kind = models.AccessAdmin
		return &ac, nil
	case candidateID.Valid && candidateID.String != "":
		ac.Kind = models.AccessCandidate
		ac.CandidateID = candidateID.String
		return &ac, nil
	}

	rows, err := c.db.QueryContext(ctx, `SELECT company_id FROM organization_members WHERE user_id = $1 ORDER BY company_id`, ac.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve memberships: %w", err)
	}
	defer rows.Close()

	ac.Kind = models.AccessOrganization
	for rows.Next() {
		var companyID string
		if err := rows.Scan(&companyID); err != nil {
			return nil, err
		}
		ac.CompanyIDs = append(ac.CompanyIDs, companyID)
	}
	return &ac, rows.Err()
}
