package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/contextkeys"
	"github.com/casetrail/casetrail/pkg/directory"
	"github.com/casetrail/casetrail/pkg/httputil"
)

// UserSource resolves a user id to a directory record. The directory
// service satisfies it.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (*directory.User, error)
}

// AuthMiddleware authenticates requests by Bearer token and attaches
// the resulting identity to the request context.
type AuthMiddleware struct {
	tokenManager *auth.TokenManager
	users        UserSource
	optional     bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware. users may
// be nil, in which case the identity carries only what the token knows.
func NewAuthMiddleware(tokenManager *auth.TokenManager, users UserSource, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		users:        users,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		apiToken, err := m.tokenManager.ValidateToken(r.Context(), parts[1])
		if err != nil {
			_ = audit.FromContext(r.Context()).LogAuthentication(r.Context(),
				audit.EventTypeAuthTokenValidateFail, nil, "", audit.EventStatusFailure,
				"token validation failed")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		identity := &auth.Identity{
			UserID:  apiToken.UserID,
			TokenID: apiToken.ID,
		}

		if m.users != nil {
			user, err := m.users.GetUser(r.Context(), apiToken.UserID)
			if err != nil || user == nil {
				httputil.WriteUnauthorized(w, "unknown user")
				return
			}
			if !user.IsActive {
				httputil.WriteUnauthorized(w, "account disabled")
				return
			}
			identity.Username = user.Username
			identity.IsService = user.IsService
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromRequest returns the identity attached by the middleware
func IdentityFromRequest(r *http.Request) (*auth.Identity, bool) {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity, ok && identity != nil
}
