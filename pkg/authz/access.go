package authz

import "fmt"

// AccessLevel is a per-case access level. Levels other than deny form a
// total order: none < read_only < full_access. Deny sits outside the
// order and overrides any other grant during resolution.
type AccessLevel string

const (
	AccessNone       AccessLevel = "none"
	AccessReadOnly   AccessLevel = "read_only"
	AccessFullAccess AccessLevel = "full_access"
	AccessDeny       AccessLevel = "deny"
)

// rank positions the ordered levels; deny is handled before ranking.
var accessRank = map[AccessLevel]int{
	AccessNone:       0,
	AccessReadOnly:   1,
	AccessFullAccess: 2,
}

// Valid reports whether l is a recognized access level
func (l AccessLevel) Valid() bool {
	if l == AccessDeny {
		return true
	}
	_, ok := accessRank[l]
	return ok
}

// AtLeast reports whether l satisfies the given minimum. Deny never
// satisfies any minimum, including none.
func (l AccessLevel) AtLeast(minimum AccessLevel) bool {
	if l == AccessDeny {
		return false
	}
	lr, ok := accessRank[l]
	if !ok {
		return false
	}
	mr, ok := accessRank[minimum]
	if !ok {
		return false
	}
	return lr >= mr
}

// maxAccess returns the higher of two ordered levels. Callers must
// handle deny before combining.
func maxAccess(a, b AccessLevel) AccessLevel {
	if accessRank[a] >= accessRank[b] {
		return a
	}
	return b
}

// ParseAccessLevel validates an access level name
func ParseAccessLevel(s string) (AccessLevel, error) {
	l := AccessLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown access level: %q", s)
	}
	return l, nil
}
