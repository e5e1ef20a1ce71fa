// Package authz implements Casetrail's authorization model: a fixed
// catalog of global permissions combined with per-case access levels.
//
// Two independent axes govern every decision:
//
//   - Global permissions: named capabilities (manage_users, alerts_read,
//     ...) resolved as the union of a user's direct permission set and
//     the permission sets of every group the user belongs to. The
//     resolved union is cached per user and invalidated explicitly by
//     the recompute operations.
//
//   - Case access: an ordered level (none < read_only < full_access)
//     plus deny, which overrides everything. The effective level for a
//     user on a case is deny if any applicable grant says deny,
//     otherwise the maximum over the user's direct grant, group grants
//     and organisation grants. No grant at all means none.
//
// The Gate is the single decision point. Handlers express what they
// need as a Requirement — AnyOf(permissions...) or
// CaseAccess{CaseID, Minimum} — and the Gate answers allow/deny,
// producing an *UnauthorizedError on deny. Ownership of a case by an
// organisation conveys attribution only, never access.
package authz
