// Package middleware provides HTTP middleware for authentication and
// rate limiting.
//
// AuthMiddleware validates Bearer API tokens, resolves the owning user
// through the directory, and attaches an *auth.Identity to the request
// context under contextkeys.IdentityKey. The authorization gate, the
// audit trail, and the handlers all read the identity from there.
//
// Two rate limiters are provided: an in-memory token bucket for
// single-instance deployments and a Redis-backed counter for shared
// limits across instances. Both key authenticated requests by user id
// (service accounts get a more generous limit) and anonymous requests
// by client IP.
package middleware
