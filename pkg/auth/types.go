package auth

import "time"

// Identity is the authenticated caller attached to a request context.
// It carries only what the authorization layer needs; permission and
// case-access resolution happen downstream against the user id.
type Identity struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	IsService bool   `json:"is_service"`
	TokenID   int64  `json:"token_id,omitempty"`
}

// APIToken represents an API token
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"` // Never expose hash
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// IsValid reports whether the token is usable at the given instant.
func (t *APIToken) IsValid(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return false
	}
	return true
}
