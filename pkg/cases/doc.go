// Package cases implements case management: cases and their assets,
// indicators, notes, tasks and evidence, plus org-scoped alerts and
// cross-case search.
//
// Access control sits at the HTTP boundary: read routes demand
// read-only case access and mutations demand full access, both
// resolved per request through the authorization gate. List and search
// narrow their result sets through the effective access resolver
// before any query runs, so a caller never sees a row from a case they
// cannot read. The organisation that owns a case is attribution only
// and never conveys access.
//
// Evidence bytes live in an object store (filesystem or S3); this
// package holds only the metadata, including the SHA-256 recorded at
// upload.
package cases
