package authz

import (
	"net/http"
	"strconv"

	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/contextkeys"
	"github.com/casetrail/casetrail/pkg/httputil"
)

// IdentityFromRequest returns the authenticated identity placed on the
// context by the auth middleware
func IdentityFromRequest(r *http.Request) (*auth.Identity, bool) {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity, ok && identity != nil
}

// RequireAnyPermission guards a route behind a disjunction of global
// permissions. Unauthenticated requests get 401, denials get 403.
func RequireAnyPermission(gate *Gate, resource, verb string, perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromRequest(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			act := Action{Resource: resource, Verb: verb}
			if err := gate.Check(r.Context(), identity.UserID, act, AnyOf(perms...)); err != nil {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireCaseAccess guards a route behind a minimum access level on the
// case named by the {case_id} path variable.
func RequireCaseAccess(gate *Gate, resource, verb string, minimum AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromRequest(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			caseID, err := httputil.ParsePathInt64(r, "case_id")
			if err != nil {
				httputil.WriteBadRequest(w, "invalid case id")
				return
			}

			act := Action{
				Resource:   resource,
				Verb:       verb,
				ResourceID: strconv.FormatInt(caseID, 10),
			}
			if err := gate.Check(r.Context(), identity.UserID, act, CaseAccess(caseID, minimum)); err != nil {
				httputil.WriteForbidden(w, "insufficient case access")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
