package cases

import (
	"context"
	"fmt"
	"strings"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/authz"
)

const defaultSearchLimit = 50

// Search runs a cross-case substring search over case titles, notes,
// indicators, assets and tasks. The result set is narrowed to the
// cases the user can read before any query runs; a user with no
// accessible cases gets an empty result regardless of the query.
func (s *PostgresService) Search(ctx context.Context, userID int64, query string, limit int) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit <= 0 || limit > 500 {
		limit = defaultSearchLimit
	}

	caseIDs, err := s.resolver.AccessibleCaseIDs(ctx, userID, authz.AccessReadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accessible cases: %w", err)
	}
	if len(caseIDs) == 0 {
		return []*SearchResult{}, nil
	}

	// Lowercased on both sides for consistent case-insensitive matching
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var results []*SearchResult

	type target struct {
		resultType string
		sql        string
	}
	// Each target selects (id, case_id, title, snippet); the case set
	// and pattern placeholders are appended per query.
	targets := []target{
		{"case", `SELECT id, id AS case_id, title, COALESCE(description, '') FROM cases WHERE id IN (%s) AND (LOWER(title) LIKE $%d OR LOWER(COALESCE(description, '')) LIKE $%d)`},
		{"note", `SELECT id, case_id, title, COALESCE(content, '') FROM case_notes WHERE case_id IN (%s) AND (LOWER(title) LIKE $%d OR LOWER(COALESCE(content, '')) LIKE $%d)`},
		{"ioc", `SELECT id, case_id, value, COALESCE(description, '') FROM case_iocs WHERE case_id IN (%s) AND (LOWER(value) LIKE $%d OR LOWER(COALESCE(description, '')) LIKE $%d)`},
		{"asset", `SELECT id, case_id, name, COALESCE(description, '') FROM case_assets WHERE case_id IN (%s) AND (LOWER(name) LIKE $%d OR LOWER(COALESCE(description, '')) LIKE $%d)`},
		{"task", `SELECT id, case_id, title, COALESCE(description, '') FROM case_tasks WHERE case_id IN (%s) AND (LOWER(title) LIKE $%d OR LOWER(COALESCE(description, '')) LIKE $%d)`},
	}

	for _, tgt := range targets {
		if len(results) >= limit {
			break
		}

		args := int64Args(caseIDs)
		args = append(args, pattern, pattern, limit-len(results))
		sqlText := fmt.Sprintf(tgt.sql, placeholders(len(caseIDs)), len(caseIDs)+1, len(caseIDs)+2)
		sqlText += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(caseIDs)+3)

		rows, err := s.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to search %ss: %w", tgt.resultType, err)
		}

		for rows.Next() {
			var r SearchResult
			var snippet string
			if err := rows.Scan(&r.ID, &r.CaseID, &r.Title, &snippet); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan search result: %w", err)
			}
			r.Type = tgt.resultType
			r.Snippet = truncateSnippet(snippet, 200)
			results = append(results, &r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	uid := userID
	_ = s.audit(ctx).LogAccess(ctx, audit.EventTypeAccessSearch, &uid, nil,
		audit.ResourceTypeCase, "",
		fmt.Sprintf("cross-case search returned %d results", len(results)))

	return results, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func truncateSnippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
