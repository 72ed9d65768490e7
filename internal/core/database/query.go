package db

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/doctext/internal/models"
)

// scopeClause renders the access restriction for scope, numbering its
// placeholders after the args already collected.
func scopeClause(scope models.Scope, args []any) (string, []any) {
	switch {
	case scope.Unrestricted:
		return "TRUE", args
	case scope.CandidateID != "":
		args = append(args, scope.CandidateID)
		return fmt.Sprintf("(entity_type = 'candidate' AND entity_id = $%d)", len(args)), args
	case len(scope.CompanyIDs) > 0:
		args = append(args, scope.CompanyIDs)
		return fmt.Sprintf("company_id = ANY($%d)", len(args)), args
	}
	return "FALSE", args
}

// buildWhere combines scope and filter into one WHERE body.
func buildWhere(scope models.Scope, f models.DocumentFilter) (string, []any) {
	var args []any
	scopeSQL, args := scopeClause(scope, args)
	parts := []string{scopeSQL}

	if f.ProcessingStatus != "" {
		args = append(args, f.ProcessingStatus)
		parts = append(parts, fmt.Sprintf("processing_status = $%d", len(args)))
	}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		parts = append(parts, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		parts = append(parts, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		parts = append(parts, fmt.Sprintf("filename ILIKE $%d", len(args)))
	}
	if f.StartedBefore != nil {
		args = append(args, *f.StartedBefore)
		parts = append(parts, fmt.Sprintf("processing_started_at < $%d", len(args)))
	}

	return strings.Join(parts, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
