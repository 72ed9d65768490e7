// memory_db.go - in-memory document store for tests
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

// MemoryDB implements core.DbClient over maps. Scope filtering goes through
// models.Scope.Allows so it mirrors the SQL scope clause.
type MemoryDB struct {
	mu    sync.RWMutex
	docs  map[string]models.Document
	users map[string]models.AccessContext

	// SaveErr, when set, is returned by every SaveDocumentState call.
	SaveErr error
	saves   []models.Document
}

var _ core.DbClient = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		docs:  make(map[string]models.Document),
		users: make(map[string]models.AccessContext),
	}
}

func (m *MemoryDB) AddDocument(d models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Metadata = d.Metadata.Clone()
	m.docs[d.ID] = d
}

func (m *MemoryDB) AddUser(externalID string, ac models.AccessContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[externalID] = ac
}

// Document returns the stored row regardless of scope.
func (m *MemoryDB) Document(id string) (models.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if ok {
		d.Metadata = d.Metadata.Clone()
	}
	return d, ok
}

// Saves returns every row written, in order.
func (m *MemoryDB) Saves() []models.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Document, len(m.saves))
	copy(out, m.saves)
	return out
}

// SetStatus moves a row without going through the repository, to simulate
// another writer.
func (m *MemoryDB) SetStatus(id string, status models.ProcessingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[id]
	d.ProcessingStatus = status
	m.docs[id] = d
}

func (m *MemoryDB) GetDocument(_ context.Context, id string, scope models.Scope) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok || !scope.Allows(&d) {
		return nil, nil
	}
	d.Metadata = d.Metadata.Clone()
	return &d, nil
}

func (m *MemoryDB) ListDocuments(_ context.Context, q models.DocumentQuery) ([]models.Document, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.Document
	for _, d := range m.docs {
		d := d
		if !q.Scope.Allows(&d) || !matches(&d, q.Filter) {
			continue
		}
		d.Metadata = d.Metadata.Clone()
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if q.Offset >= total {
		return nil, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func matches(d *models.Document, f models.DocumentFilter) bool {
	if f.ProcessingStatus != "" && d.ProcessingStatus != f.ProcessingStatus {
		return false
	}
	if f.EntityType != "" && d.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && d.EntityID != f.EntityID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(d.Filename), strings.ToLower(strings.TrimSpace(f.Search))) {
		return false
	}
	if f.StartedBefore != nil && (d.ProcessingStartedAt == nil || !d.ProcessingStartedAt.Before(*f.StartedBefore)) {
		return false
	}
	return true
}

func (m *MemoryDB) SaveDocumentState(_ context.Context, doc *models.Document, scope models.Scope, expect models.ProcessingStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return false, m.SaveErr
	}
	cur, ok := m.docs[doc.ID]
	if !ok || !scope.Allows(&cur) {
		return false, nil
	}
	if expect != "" && cur.ProcessingStatus != expect {
		return false, nil
	}

	cur.ProcessingStatus = doc.ProcessingStatus
	cur.Metadata = doc.Metadata.Clone()
	cur.TextLength = doc.TextLength
	cur.ProcessingError = doc.ProcessingError
	cur.UpdatedAt = doc.UpdatedAt
	cur.ProcessingStartedAt = doc.ProcessingStartedAt
	cur.ProcessingCompletedAt = doc.ProcessingCompletedAt
	m.docs[doc.ID] = cur
	m.saves = append(m.saves, cur)
	return true, nil
}

func (m *MemoryDB) ResolveAccess(_ context.Context, externalUserID string) (*models.AccessContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ac, ok := m.users[externalUserID]
	if !ok {
		return nil, models.ErrAccessDenied
	}
	return &ac, nil
}

func (m *MemoryDB) Close() error { return nil }
