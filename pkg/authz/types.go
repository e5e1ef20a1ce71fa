package authz

import (
	"fmt"
	"strings"
	"time"
)

// UserCaseGrant is a direct case-access grant to a user
type UserCaseGrant struct {
	UserID    int64       `json:"user_id"`
	CaseID    int64       `json:"case_id"`
	Level     AccessLevel `json:"level"`
	GrantedAt time.Time   `json:"granted_at"`
	GrantedBy *int64      `json:"granted_by,omitempty"`
}

// GroupCaseGrant is a case-access grant to every member of a group
type GroupCaseGrant struct {
	GroupID   int64       `json:"group_id"`
	CaseID    int64       `json:"case_id"`
	Level     AccessLevel `json:"level"`
	GrantedAt time.Time   `json:"granted_at"`
	GrantedBy *int64      `json:"granted_by,omitempty"`
}

// OrgCaseGrant is a case-access grant to every member of an organisation
type OrgCaseGrant struct {
	OrgID     int64       `json:"organisation_id"`
	CaseID    int64       `json:"case_id"`
	Level     AccessLevel `json:"level"`
	GrantedAt time.Time   `json:"granted_at"`
	GrantedBy *int64      `json:"granted_by,omitempty"`
}

// Requirement is what a protected operation demands of the caller.
// Exactly two forms exist: a disjunction of global permissions, or a
// minimum access level on a specific case.
type Requirement interface {
	// Describe renders the requirement for denial records and logs
	Describe() string
}

type anyOfRequirement struct {
	perms []Permission
}

// AnyOf requires at least one of the given global permissions
func AnyOf(perms ...Permission) Requirement {
	return anyOfRequirement{perms: perms}
}

func (r anyOfRequirement) Describe() string {
	names := make([]string, len(r.perms))
	for i, p := range r.perms {
		names[i] = string(p)
	}
	return "any_of(" + strings.Join(names, "|") + ")"
}

type caseAccessRequirement struct {
	caseID  int64
	minimum AccessLevel
}

// CaseAccess requires at least the given access level on a case.
// Deny on the case fails the requirement regardless of minimum.
func CaseAccess(caseID int64, minimum AccessLevel) Requirement {
	return caseAccessRequirement{caseID: caseID, minimum: minimum}
}

func (r caseAccessRequirement) Describe() string {
	return fmt.Sprintf("case_access(case=%d,min=%s)", r.caseID, r.minimum)
}

// UnauthorizedError is the typed denial produced by the Gate. It never
// crosses the HTTP boundary as anything other than a 403 response.
type UnauthorizedError struct {
	UserID     int64
	Resource   string
	Action     string
	ResourceID string
}

func (e *UnauthorizedError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("user %d is not authorized to %s %s %s", e.UserID, e.Action, e.Resource, e.ResourceID)
	}
	return fmt.Sprintf("user %d is not authorized to %s %s", e.UserID, e.Action, e.Resource)
}

// InvalidGrantStateError reports a grant row that violates the model,
// e.g. a level outside the enum or a permission outside the catalog.
type InvalidGrantStateError struct {
	Detail string
}

func (e *InvalidGrantStateError) Error() string {
	return "invalid grant state: " + e.Detail
}
