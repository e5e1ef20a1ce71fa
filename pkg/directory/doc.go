// Package directory manages the principals of the system: users, groups,
// and organisations, plus their memberships.
//
// Membership and permission mutations are the events that can change a
// user's effective permission set, so the service recomputes affected
// users through the authorization resolver after every such change.
// Organisation membership only influences per-case access, which is
// resolved live against the grant store and needs no recompute.
package directory
