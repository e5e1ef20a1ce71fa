// Package api assembles the Casetrail HTTP surface: the gorilla/mux
// router, the middleware chain, and route registration for the feature
// packages.
//
// The middleware chain, outermost first: request id, request logging,
// panic recovery, metrics, audit trail, Bearer token authentication,
// rate limiting, then the router. Every route below the chain sees an
// authenticated identity on the request context.
//
// Authorization is enforced per route group. The cases package carries
// its own guards because case routes depend on the {case_id} path
// variable; directory, activity, token, and settings routes are guarded
// here with permission requirements against the authorization gate.
//
// Health and metrics endpoints are intentionally not part of this
// router. They are served unauthenticated on a separate port by the
// service binary.
package api
