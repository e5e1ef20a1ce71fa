// Package httputil provides the shared JSON request/response helpers and
// generic HTTP middleware used by every handler package.
//
// Responses:
//
//	httputil.WriteSuccess(w, kase)
//	httputil.WriteCreated(w, created)
//	httputil.WriteNoContent(w)
//	httputil.WriteBadRequest(w, "title is required")
//	httputil.WriteForbidden(w, "access denied")
//
// Error bodies are always of the form {"error": "message"}. Success bodies
// are the encoded value itself, with no envelope.
//
// Request parsing:
//
//	var req CreateCaseRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
//
// Middleware:
//
//	wrap := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)
//	handler = wrap(router)
//
// Authentication and authorization middleware live in pkg/middleware and
// pkg/authz respectively.
package httputil
