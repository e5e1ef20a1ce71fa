// Package auth provides API token authentication for Casetrail.
//
// Tokens are opaque bearer credentials of the form
// casetrail_<base64url(32 random bytes)>. Only the SHA256 hash is stored;
// the plaintext is returned exactly once at creation time. Validation
// resolves a presented token to an Identity, which downstream
// authorization (pkg/authz) uses to resolve effective permissions and
// case access. This package deliberately knows nothing about
// permissions — it answers "who is calling", not "what may they do".
package auth
