package models

// AccessKind is the visibility class of a caller.
type AccessKind string

const (
	AccessCandidate    AccessKind = "candidate"
	AccessOrganization AccessKind = "organization"
	AccessAdmin        AccessKind = "admin"
)

// AccessContext is the resolved visibility scope of a calling identity.
type AccessContext struct {
	UserID      string
	Kind        AccessKind
	CandidateID string
	CompanyIDs  []string
}

// Scope is the row filter a store applies before touching documents.
// The zero value matches nothing.
type Scope struct {
	Unrestricted bool
	CandidateID  string
	CompanyIDs   []string
}

// SystemScope is unrestricted. Only the processing pipeline may use it.
func SystemScope() Scope {
	return Scope{Unrestricted: true}
}

// Scope derives the row filter for the caller.
func (a AccessContext) Scope() Scope {
	switch a.Kind {
	case AccessAdmin:
		return Scope{Unrestricted: true}
	case AccessCandidate:
		return Scope{CandidateID: a.CandidateID}
	case AccessOrganization:
		ids := make([]string, len(a.CompanyIDs))
		copy(ids, a.CompanyIDs)
		return Scope{CompanyIDs: ids}
	}
	return Scope{}
}

// Allows reports whether a document is visible under s.
func (s Scope) Allows(d *Document) bool {
	if d == nil {
		return false
	}
	if s.Unrestricted {
		return true
	}
	if s.CandidateID != "" {
		return d.EntityType == EntityCandidate && d.EntityID == s.CandidateID
	}
	if d.CompanyID == nil {
		return false
	}
	for _, id := range s.CompanyIDs {
		if id == *d.CompanyID {
			return true
		}
	}
	return false
}
