package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/contextkeys"
	"github.com/casetrail/casetrail/pkg/httputil"
)

// tokenHandlers exposes API token self-service for the authenticated
// user. Tokens always belong to the caller; there is no cross-user
// token administration over HTTP.
type tokenHandlers struct {
	tokens   *auth.TokenManager
	auditLog audit.Logger
}

func newTokenHandlers(tokens *auth.TokenManager, auditLog audit.Logger) *tokenHandlers {
	if auditLog == nil {
		auditLog = audit.FromContext(context.Background())
	}
	return &tokenHandlers{tokens: tokens, auditLog: auditLog}
}

func (h *tokenHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/tokens", h.listTokens).Methods("GET")
	router.HandleFunc("/tokens", h.createToken).Methods("POST")
	router.HandleFunc("/tokens/{token_id}", h.revokeToken).Methods("DELETE")
}

func identityFromRequest(r *http.Request) (*auth.Identity, bool) {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity, ok && identity != nil
}

func (h *tokenHandlers) listTokens(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tokens, err := h.tokens.ListUserTokens(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, tokens)
}

type createTokenRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// createTokenResponse carries the plaintext token exactly once, at
// creation time.
type createTokenResponse struct {
	Token   *auth.APIToken `json:"token"`
	Secret  string         `json:"secret"`
	Warning string         `json:"warning"`
}

func (h *tokenHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at must be in the future")
		return
	}

	token, secret, err := h.tokens.CreateToken(r.Context(), identity.UserID, req.Name, req.Description, req.ExpiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	userID := identity.UserID
	h.auditLog.LogAuthentication(r.Context(), audit.EventTypeAuthTokenCreate, &userID, identity.Username,
		audit.EventStatusSuccess, "API token created: "+req.Name)

	httputil.WriteCreated(w, createTokenResponse{
		Token:   token,
		Secret:  secret,
		Warning: "store this secret now, it is not retrievable later",
	})
}

func (h *tokenHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}

	// Confirm ownership before revoking
	tokens, err := h.tokens.ListUserTokens(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	owned := false
	for _, t := range tokens {
		if t.ID == tokenID {
			owned = true
			break
		}
	}
	if !owned {
		httputil.WriteNotFoundError(w, "token not found")
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), tokenID, identity.UserID, "revoked by owner"); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	userID := identity.UserID
	h.auditLog.LogAuthentication(r.Context(), audit.EventTypeAuthTokenRevoke, &userID, identity.Username,
		audit.EventStatusSuccess, "API token revoked")

	httputil.WriteNoContent(w)
}
