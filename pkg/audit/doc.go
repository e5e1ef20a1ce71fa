// Package audit provides the investigation audit trail for security,
// compliance, and chain-of-custody needs.
//
// # Overview
//
// This package tracks authentication events, authorization denials, case
// data mutations, configuration changes, and admin actions with
// before/after values and request context. Events that happen inside a
// case carry the case ID so each case has a browsable activity feed.
//
// # Event Types
//
// Authentication: auth.login, auth.token_create, auth.token_revoke
// Authorization: authz.access_denied, authz.grant_set, authz.recompute
// Case data: case.create, case.asset_create, case.ioc_update, case.evidence_upload
// Admin: admin.user_create, admin.group_update, admin.member_add
// Access: access.case_read, access.evidence_read, access.search
//
// # Usage Example
//
// Log a case data mutation with before/after:
//
//	logger.LogDataMutation(ctx, audit.EventTypeAssetUpdate, &userID, &caseID,
//		audit.ResourceTypeAsset, assetID, &audit.ChangeDetails{
//			Before: oldFields,
//			After:  newFields,
//		}, "updated asset hostname")
//
// Search the trail:
//
//	results, err := store.Search(ctx, audit.SearchFilter{
//		StartTime:  &since,
//		CaseID:     &caseID,
//		EventTypes: []audit.EventType{audit.EventTypeEvidenceUpload},
//	})
//
// # Retention
//
// Old entries are purged by Store.Cleanup on the schedule configured in
// pkg/config. Export supports JSON, CSV, and NDJSON.
//
// # Related Packages
//
//   - pkg/auth: authentication events
//   - pkg/authz: authorization denials (via DenialRecorder)
//   - pkg/middleware: HTTP request logging
package audit
