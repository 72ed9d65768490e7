package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/doctext/internal/models"
	"github.com/markdave123-py/doctext/internal/testutil"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) (*testutil.MemoryDB, *DocumentRepository) {
	t.Helper()
	db := testutil.NewMemoryDB()
	db.AddUser("cand-user", models.AccessContext{UserID: "u1", Kind: models.AccessCandidate, CandidateID: "cand-1"})
	db.AddUser("org-user", models.AccessContext{UserID: "u2", Kind: models.AccessOrganization, CompanyIDs: []string{"co-1"}})
	db.AddUser("admin", models.AccessContext{UserID: "u3", Kind: models.AccessAdmin})

	db.AddDocument(models.Document{ID: "d-cand", Filename: "resume.pdf", EntityType: models.EntityCandidate, EntityID: "cand-1",
		ProcessingStatus: models.StatusPending, CreatedAt: baseTime})
	db.AddDocument(models.Document{ID: "d-other-cand", Filename: "cv.docx", EntityType: models.EntityCandidate, EntityID: "cand-2",
		ProcessingStatus: models.StatusPending, CreatedAt: baseTime.Add(time.Minute)})
	db.AddDocument(models.Document{ID: "d-job", Filename: "job-posting.pdf", EntityType: models.EntityJob, EntityID: "job-1",
		CompanyID: strPtr("co-1"), ProcessingStatus: models.StatusProcessed, CreatedAt: baseTime.Add(2 * time.Minute)})
	db.AddDocument(models.Document{ID: "d-other-co", Filename: "deck.pdf", EntityType: models.EntityCompany, EntityID: "co-2",
		CompanyID: strPtr("co-2"), ProcessingStatus: models.StatusPending, CreatedAt: baseTime.Add(3 * time.Minute)})

	repo := NewDocumentRepository(db)
	repo.now = func() time.Time { return baseTime.Add(time.Hour) }
	return db, repo
}

func ids(docs []models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestListIsScoped(t *testing.T) {
	_, repo := newFixture(t)
	ctx := context.Background()

	docs, page, err := repo.List(ctx, "cand-user", models.DocumentFilter{}, models.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d-cand"}, ids(docs))
	assert.Equal(t, 1, page.Total)

	docs, _, err = repo.List(ctx, "org-user", models.DocumentFilter{}, models.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d-job"}, ids(docs))

	docs, page, err = repo.List(ctx, "admin", models.DocumentFilter{ProcessingStatus: models.StatusPending}, models.PageRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d-other-co", "d-other-cand"}, ids(docs))
	assert.Equal(t, models.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page)
}

func TestListUnknownUserDenied(t *testing.T) {
	_, repo := newFixture(t)

	_, _, err := repo.List(context.Background(), "stranger", models.DocumentFilter{}, models.PageRequest{})
	assert.ErrorIs(t, err, models.ErrAccessDenied)

	_, _, err = repo.List(context.Background(), "", models.DocumentFilter{}, models.PageRequest{})
	assert.ErrorIs(t, err, models.ErrAccessDenied)
}

func TestGetOutsideScopeIsNotFound(t *testing.T) {
	_, repo := newFixture(t)

	_, err := repo.Get(context.Background(), "cand-user", "d-other-cand")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	doc, err := repo.Get(context.Background(), "cand-user", "d-cand")
	require.NoError(t, err)
	assert.Equal(t, "resume.pdf", doc.Filename)
}

func TestUpdateOutsideScopeLeavesRowUntouched(t *testing.T) {
	db, repo := newFixture(t)
	status := models.StatusProcessing

	_, err := repo.Update(context.Background(), "org-user", "d-other-co", models.DocumentPatch{ProcessingStatus: &status})
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	row, _ := db.Document("d-other-co")
	assert.Equal(t, models.StatusPending, row.ProcessingStatus)
	assert.Empty(t, db.Saves())
}

func TestCountPendingIsScoped(t *testing.T) {
	_, repo := newFixture(t)

	n, err := repo.CountPending(context.Background(), "cand-user")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountPending(context.Background(), "org-user")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = repo.CountPending(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSystemPathIgnoresScope(t *testing.T) {
	_, repo := newFixture(t)
	ctx := context.Background()

	doc, err := repo.GetBySystem(ctx, "d-other-co")
	require.NoError(t, err)
	assert.Equal(t, "deck.pdf", doc.Filename)

	pending, err := repo.GetPendingDocuments(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestUpdateBySystemConditional(t *testing.T) {
	db, repo := newFixture(t)
	processing := models.StatusProcessing
	pending := models.StatusPending

	db.SetStatus("d-cand", models.StatusProcessed)
	_, err := repo.UpdateBySystem(context.Background(), "d-cand", models.DocumentPatch{ProcessingStatus: &processing, ExpectStatus: &pending})
	assert.ErrorIs(t, err, models.ErrStatusConflict)

	row, _ := db.Document("d-cand")
	assert.Equal(t, models.StatusProcessed, row.ProcessingStatus)
}

func TestGetStaleProcessing(t *testing.T) {
	db, repo := newFixture(t)
	processing := models.StatusProcessing
	ctx := context.Background()

	_, err := repo.UpdateBySystem(ctx, "d-cand", models.DocumentPatch{ProcessingStatus: &processing})
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, mustDoc(t, db, "d-cand").ProcessingStatus)

	stale, err := repo.GetStaleProcessing(ctx, baseTime.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d-cand"}, ids(stale))

	stale, err = repo.GetStaleProcessing(ctx, baseTime, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func mustDoc(t *testing.T, db *testutil.MemoryDB, id string) models.Document {
	t.Helper()
	d, ok := db.Document(id)
	require.True(t, ok)
	return d
}

func TestApplyPatchLifecycle(t *testing.T) {
	now := baseTime.Add(time.Hour)
	processing := models.StatusProcessing
	processed := models.StatusProcessed
	failed := models.StatusFailed

	start := &models.Document{ID: "d", ProcessingStatus: models.StatusFailed, ProcessingError: strPtr("boom"),
		Metadata: models.Metadata{Extra: map[string]any{"source": "upload"}}}

	t.Run("entering processing clears error and stamps start", func(t *testing.T) {
		next, err := ApplyPatch(start, models.DocumentPatch{ProcessingStatus: &processing}, now)
		require.NoError(t, err)
		assert.Nil(t, next.ProcessingError)
		require.NotNil(t, next.ProcessingStartedAt)
		assert.Equal(t, now, *next.ProcessingStartedAt)
		assert.Nil(t, next.ProcessingCompletedAt)
		assert.Equal(t, now, next.UpdatedAt)
		assert.Equal(t, "boom", *start.ProcessingError)
	})

	t.Run("processed derives text length and keeps extra keys", func(t *testing.T) {
		cur := &models.Document{ID: "d", ProcessingStatus: models.StatusProcessing, Metadata: start.Metadata}
		next, err := ApplyPatch(cur, models.DocumentPatch{ProcessingStatus: &processed, ExtractedText: strPtr("héllo world")}, now)
		require.NoError(t, err)
		require.NotNil(t, next.TextLength)
		assert.Equal(t, 11, *next.TextLength)
		assert.Equal(t, "upload", next.Metadata.Extra["source"])
		require.NotNil(t, next.ProcessingCompletedAt)
		assert.Nil(t, next.ProcessingError)
	})

	t.Run("failed without message gets a default", func(t *testing.T) {
		cur := &models.Document{ID: "d", ProcessingStatus: models.StatusProcessing}
		next, err := ApplyPatch(cur, models.DocumentPatch{ProcessingStatus: &failed}, now)
		require.NoError(t, err)
		require.NotNil(t, next.ProcessingError)
		assert.NotEmpty(t, *next.ProcessingError)
		assert.Nil(t, next.TextLength)
	})

	t.Run("leaving processed drops extracted text", func(t *testing.T) {
		text := "old text"
		cur := &models.Document{ID: "d", ProcessingStatus: models.StatusProcessed, TextLength: new(int),
			Metadata: models.Metadata{Extraction: &models.ExtractionMetadata{ExtractedText: &text, ExtractionMethod: strPtr("pdf-text")}}}
		next, err := ApplyPatch(cur, models.DocumentPatch{ProcessingStatus: &processing}, now)
		require.NoError(t, err)
		assert.False(t, next.Metadata.HasExtractedText())
		assert.Equal(t, "pdf-text", *next.Metadata.Extraction.ExtractionMethod)
		assert.Nil(t, next.TextLength)
		assert.True(t, cur.Metadata.HasExtractedText())
	})

	t.Run("processed without text rejected", func(t *testing.T) {
		cur := &models.Document{ID: "d", ProcessingStatus: models.StatusProcessing}
		_, err := ApplyPatch(cur, models.DocumentPatch{ProcessingStatus: &processed}, now)
		assert.ErrorIs(t, err, models.ErrInvalidPatch)
	})

	t.Run("extraction keys merge one by one", func(t *testing.T) {
		text := "kept"
		cur := &models.Document{ID: "d", ProcessingStatus: models.StatusProcessed,
			Metadata: models.Metadata{Extraction: &models.ExtractionMetadata{ExtractedText: &text, ExtractionMethod: strPtr("docx")}}}
		pages := 7
		next, err := ApplyPatch(cur, models.DocumentPatch{Metadata: &models.Metadata{Extraction: &models.ExtractionMetadata{Pages: &pages}}}, now)
		require.NoError(t, err)
		assert.Equal(t, "kept", *next.Metadata.Extraction.ExtractedText)
		assert.Equal(t, "docx", *next.Metadata.Extraction.ExtractionMethod)
		assert.Equal(t, 7, *next.Metadata.Extraction.Pages)
		require.NotNil(t, next.TextLength)
		assert.Equal(t, 4, *next.TextLength)
	})

	t.Run("reserved extra key rejected", func(t *testing.T) {
		_, err := ApplyPatch(start, models.DocumentPatch{Metadata: &models.Metadata{Extra: map[string]any{"word_count": 3}}}, now)
		assert.ErrorIs(t, err, models.ErrReservedMetadataKey)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		bogus := models.ProcessingStatus("archived")
		_, err := ApplyPatch(start, models.DocumentPatch{ProcessingStatus: &bogus}, now)
		assert.ErrorIs(t, err, models.ErrInvalidStatus)
	})
}
