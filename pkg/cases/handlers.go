package cases

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/contextkeys"
	"github.com/casetrail/casetrail/pkg/httputil"
)

// maxEvidenceUploadBytes caps a single evidence upload at 1 GiB
const maxEvidenceUploadBytes = 1 << 30

// Handlers provides HTTP handlers for case management
type Handlers struct {
	service Service
	store   *authz.Store
	gate    *authz.Gate
}

// NewHandlers creates new case handlers. The grant store backs the
// per-case access management endpoints.
func NewHandlers(service Service, store *authz.Store, gate *authz.Gate) *Handlers {
	return &Handlers{service: service, store: store, gate: gate}
}

// RegisterCaseRoutes registers all case routes. Reads require read_only
// case access, mutations require full_access; both are enforced here
// per route because the requirement depends on the {case_id} path
// variable. Case creation and listing need only an authenticated user
// with the standard_user permission.
func (h *Handlers) RegisterCaseRoutes(router *mux.Router) {
	createGuard := authz.RequireAnyPermission(h.gate, "case", "create", authz.PermStandardUser)
	listGuard := authz.RequireAnyPermission(h.gate, "case", "list", authz.PermStandardUser)
	read := func(verb string, fn http.HandlerFunc) http.Handler {
		return authz.RequireCaseAccess(h.gate, "case", verb, authz.AccessReadOnly)(fn)
	}
	write := func(verb string, fn http.HandlerFunc) http.Handler {
		return authz.RequireCaseAccess(h.gate, "case", verb, authz.AccessFullAccess)(fn)
	}

	router.Handle("/cases", createGuard(http.HandlerFunc(h.createCase))).Methods("POST")
	router.Handle("/cases", listGuard(http.HandlerFunc(h.listCases))).Methods("GET")
	router.Handle("/cases/{case_id}", read("read", h.getCase)).Methods("GET")
	router.Handle("/cases/{case_id}", write("update", h.updateCase)).Methods("PATCH")
	router.Handle("/cases/{case_id}", write("delete", h.deleteCase)).Methods("DELETE")
	router.Handle("/cases/{case_id}/close", write("close", h.closeCase)).Methods("POST")
	router.Handle("/cases/{case_id}/reopen", write("reopen", h.reopenCase)).Methods("POST")

	router.Handle("/cases/{case_id}/assets", read("read", h.listAssets)).Methods("GET")
	router.Handle("/cases/{case_id}/assets", write("update", h.addAsset)).Methods("POST")
	router.Handle("/cases/{case_id}/assets/{asset_id}", write("update", h.updateAsset)).Methods("PATCH")
	router.Handle("/cases/{case_id}/assets/{asset_id}", write("update", h.deleteAsset)).Methods("DELETE")

	router.Handle("/cases/{case_id}/iocs", read("read", h.listIOCs)).Methods("GET")
	router.Handle("/cases/{case_id}/iocs", write("update", h.addIOC)).Methods("POST")
	router.Handle("/cases/{case_id}/iocs/{ioc_id}", write("update", h.updateIOC)).Methods("PATCH")
	router.Handle("/cases/{case_id}/iocs/{ioc_id}", write("update", h.deleteIOC)).Methods("DELETE")

	router.Handle("/cases/{case_id}/notes", read("read", h.listNotes)).Methods("GET")
	router.Handle("/cases/{case_id}/notes", write("update", h.addNote)).Methods("POST")
	router.Handle("/cases/{case_id}/notes/{note_id}", write("update", h.updateNote)).Methods("PATCH")
	router.Handle("/cases/{case_id}/notes/{note_id}", write("update", h.deleteNote)).Methods("DELETE")

	router.Handle("/cases/{case_id}/tasks", read("read", h.listTasks)).Methods("GET")
	router.Handle("/cases/{case_id}/tasks", write("update", h.addTask)).Methods("POST")
	router.Handle("/cases/{case_id}/tasks/{task_id}", write("update", h.updateTask)).Methods("PATCH")
	router.Handle("/cases/{case_id}/tasks/{task_id}", write("update", h.deleteTask)).Methods("DELETE")

	router.Handle("/cases/{case_id}/evidence", read("read", h.listEvidence)).Methods("GET")
	router.Handle("/cases/{case_id}/evidence", write("upload", h.uploadEvidence)).Methods("POST")
	router.Handle("/cases/{case_id}/evidence/{evidence_id}", read("read", h.getEvidence)).Methods("GET")
	router.Handle("/cases/{case_id}/evidence/{evidence_id}/download", read("download", h.downloadEvidence)).Methods("GET")
	router.Handle("/cases/{case_id}/evidence/{evidence_id}", write("delete", h.deleteEvidence)).Methods("DELETE")

	router.Handle("/cases/{case_id}/access", write("manage_access", h.listCaseGrants)).Methods("GET")
	router.Handle("/cases/{case_id}/access/users/{user_id}", write("manage_access", h.setUserGrant)).Methods("PUT")
	router.Handle("/cases/{case_id}/access/users/{user_id}", write("manage_access", h.removeUserGrant)).Methods("DELETE")
	router.Handle("/cases/{case_id}/access/groups/{group_id}", write("manage_access", h.setGroupGrant)).Methods("PUT")
	router.Handle("/cases/{case_id}/access/groups/{group_id}", write("manage_access", h.removeGroupGrant)).Methods("DELETE")
	router.Handle("/cases/{case_id}/access/organisations/{org_id}", write("manage_access", h.setOrgGrant)).Methods("PUT")
	router.Handle("/cases/{case_id}/access/organisations/{org_id}", write("manage_access", h.removeOrgGrant)).Methods("DELETE")
}

// RegisterAlertRoutes registers alert routes, guarded by the alert
// permissions
func (h *Handlers) RegisterAlertRoutes(router *mux.Router) {
	read := authz.RequireAnyPermission(h.gate, "alert", "read", authz.PermAlertsRead, authz.PermAlertsWrite)
	write := authz.RequireAnyPermission(h.gate, "alert", "write", authz.PermAlertsWrite)

	router.Handle("/alerts", read(http.HandlerFunc(h.listAlerts))).Methods("GET")
	router.Handle("/alerts", write(http.HandlerFunc(h.createAlert))).Methods("POST")
	router.Handle("/alerts/{alert_id}", read(http.HandlerFunc(h.getAlert))).Methods("GET")
	router.Handle("/alerts/{alert_id}", write(http.HandlerFunc(h.updateAlert))).Methods("PATCH")
	router.Handle("/alerts/{alert_id}/close", write(http.HandlerFunc(h.closeAlert))).Methods("POST")
}

// RegisterSearchRoutes registers the cross-case search route, guarded
// by search_across_cases
func (h *Handlers) RegisterSearchRoutes(router *mux.Router) {
	guard := authz.RequireAnyPermission(h.gate, "search", "read", authz.PermSearchAcrossCases)
	router.Handle("/search", guard(http.HandlerFunc(h.search))).Methods("GET")
}

func actorFromRequest(r *http.Request) *int64 {
	if identity, ok := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity); ok && identity != nil {
		id := identity.UserID
		return &id
	}
	return nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	var invalid *authz.InvalidGrantStateError
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	case errors.As(err, &invalid):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

func (h *Handlers) createCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}

	c, err := h.service.CreateCase(r.Context(), req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, c)
}

func (h *Handlers) listCases(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	list, err := h.service.ListCases(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"cases": list, "count": len(list)})
}

func (h *Handlers) getCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	c, err := h.service.GetCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (h *Handlers) updateCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	var req UpdateCaseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	c, err := h.service.UpdateCase(r.Context(), caseID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (h *Handlers) closeCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	c, err := h.service.CloseCase(r.Context(), caseID, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (h *Handlers) reopenCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	c, err := h.service.ReopenCase(r.Context(), caseID, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (h *Handlers) deleteCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	if err := h.service.DeleteCase(r.Context(), caseID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listAssets(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	assets, err := h.service.ListAssets(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"assets": assets, "count": len(assets)})
}

func (h *Handlers) addAsset(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	var req CreateAssetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	asset, err := h.service.AddAsset(r.Context(), caseID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, asset)
}

func (h *Handlers) updateAsset(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	assetID, ok := httputil.ParsePathInt64OrError(w, r, "asset_id")
	if !ok {
		return
	}
	var req UpdateAssetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	asset, err := h.service.UpdateAsset(r.Context(), caseID, assetID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, asset)
}

func (h *Handlers) deleteAsset(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	assetID, ok := httputil.ParsePathInt64OrError(w, r, "asset_id")
	if !ok {
		return
	}
	if err := h.service.DeleteAsset(r.Context(), caseID, assetID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listIOCs(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	iocs, err := h.service.ListIOCs(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"iocs": iocs, "count": len(iocs)})
}

func (h *Handlers) addIOC(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	var req CreateIOCRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Value, "value") {
		return
	}
	ioc, err := h.service.AddIOC(r.Context(), caseID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, ioc)
}

func (h *Handlers) updateIOC(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	iocID, ok := httputil.ParsePathInt64OrError(w, r, "ioc_id")
	if !ok {
		return
	}
	var req UpdateIOCRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ioc, err := h.service.UpdateIOC(r.Context(), caseID, iocID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, ioc)
}

func (h *Handlers) deleteIOC(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	iocID, ok := httputil.ParsePathInt64OrError(w, r, "ioc_id")
	if !ok {
		return
	}
	if err := h.service.DeleteIOC(r.Context(), caseID, iocID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listNotes(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	notes, err := h.service.ListNotes(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"notes": notes, "count": len(notes)})
}

func (h *Handlers) addNote(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	var req CreateNoteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	note, err := h.service.AddNote(r.Context(), caseID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, note)
}

func (h *Handlers) updateNote(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	noteID, ok := httputil.ParsePathInt64OrError(w, r, "note_id")
	if !ok {
		return
	}
	var req UpdateNoteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	note, err := h.service.UpdateNote(r.Context(), caseID, noteID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, note)
}

func (h *Handlers) deleteNote(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	noteID, ok := httputil.ParsePathInt64OrError(w, r, "note_id")
	if !ok {
		return
	}
	if err := h.service.DeleteNote(r.Context(), caseID, noteID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	tasks, err := h.service.ListTasks(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"tasks": tasks, "count": len(tasks)})
}

func (h *Handlers) addTask(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	task, err := h.service.AddTask(r.Context(), caseID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, task)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	task, err := h.service.UpdateTask(r.Context(), caseID, taskID, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}
	if err := h.service.DeleteTask(r.Context(), caseID, taskID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listEvidence(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	items, err := h.service.ListEvidence(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"evidence": items, "count": len(items)})
}

// uploadEvidence accepts a multipart form with a "file" part and an
// optional "description" field
func (h *Handlers) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "missing or invalid file upload")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	description := r.FormValue("description")

	item, err := h.service.UploadEvidence(r.Context(), caseID, header.Filename, contentType, description, file, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, item)
}

func (h *Handlers) getEvidence(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	evidenceID, ok := httputil.ParsePathInt64OrError(w, r, "evidence_id")
	if !ok {
		return
	}
	item, err := h.service.GetEvidence(r.Context(), caseID, evidenceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

func (h *Handlers) downloadEvidence(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	evidenceID, ok := httputil.ParsePathInt64OrError(w, r, "evidence_id")
	if !ok {
		return
	}

	item, reader, err := h.service.OpenEvidence(r.Context(), caseID, evidenceID, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer reader.Close()

	contentType := item.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(item.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.Filename))
	w.Header().Set("X-Checksum-SHA256", item.SHA256)

	if _, err := io.Copy(w, reader); err != nil {
		// Headers are already out; nothing to do but note the failure
		return
	}
}

func (h *Handlers) deleteEvidence(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	evidenceID, ok := httputil.ParsePathInt64OrError(w, r, "evidence_id")
	if !ok {
		return
	}
	if err := h.service.DeleteEvidence(r.Context(), caseID, evidenceID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	var orgID *int64
	if raw := r.URL.Query().Get("organisation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid organisation_id")
			return
		}
		orgID = &id
	}
	var status *AlertStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := AlertStatus(raw)
		if st != AlertStatusOpen && st != AlertStatusClosed {
			httputil.WriteBadRequest(w, "invalid status")
			return
		}
		status = &st
	}

	alerts, err := h.service.ListAlerts(r.Context(), orgID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

func (h *Handlers) createAlert(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	alert, err := h.service.CreateAlert(r.Context(), req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, alert)
}

func (h *Handlers) getAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "alert_id")
	if !ok {
		return
	}
	alert, err := h.service.GetAlert(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, alert)
}

func (h *Handlers) updateAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "alert_id")
	if !ok {
		return
	}
	var req UpdateAlertRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	alert, err := h.service.UpdateAlert(r.Context(), id, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, alert)
}

func (h *Handlers) closeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "alert_id")
	if !ok {
		return
	}
	alert, err := h.service.CloseAlert(r.Context(), id, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, alert)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteBadRequest(w, "query parameter q is required")
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}

	results, err := h.service.Search(r.Context(), identity.UserID, query, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"results": results, "count": len(results)})
}

// grantPayload is the body for case access grant endpoints
type grantPayload struct {
	Level string `json:"level"`
}

func (h *Handlers) listCaseGrants(w http.ResponseWriter, r *http.Request) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	grants, err := h.store.ListCaseGrants(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, grants)
}

func (h *Handlers) setUserGrant(w http.ResponseWriter, r *http.Request) {
	h.setGrant(w, r, "user_id", func(ctx *http.Request, principalID, caseID int64, level authz.AccessLevel, actorID *int64) error {
		return h.store.SetUserCaseAccess(ctx.Context(), principalID, caseID, level, actorID)
	}, "user")
}

func (h *Handlers) removeUserGrant(w http.ResponseWriter, r *http.Request) {
	h.removeGrant(w, r, "user_id", func(ctx *http.Request, principalID, caseID int64) error {
		return h.store.RemoveUserCaseAccess(ctx.Context(), principalID, caseID)
	}, "user")
}

func (h *Handlers) setGroupGrant(w http.ResponseWriter, r *http.Request) {
	h.setGrant(w, r, "group_id", func(ctx *http.Request, principalID, caseID int64, level authz.AccessLevel, actorID *int64) error {
		return h.store.SetGroupCaseAccess(ctx.Context(), principalID, caseID, level, actorID)
	}, "group")
}

func (h *Handlers) removeGroupGrant(w http.ResponseWriter, r *http.Request) {
	h.removeGrant(w, r, "group_id", func(ctx *http.Request, principalID, caseID int64) error {
		return h.store.RemoveGroupCaseAccess(ctx.Context(), principalID, caseID)
	}, "group")
}

func (h *Handlers) setOrgGrant(w http.ResponseWriter, r *http.Request) {
	h.setGrant(w, r, "org_id", func(ctx *http.Request, principalID, caseID int64, level authz.AccessLevel, actorID *int64) error {
		return h.store.SetOrgCaseAccess(ctx.Context(), principalID, caseID, level, actorID)
	}, "organisation")
}

func (h *Handlers) removeOrgGrant(w http.ResponseWriter, r *http.Request) {
	h.removeGrant(w, r, "org_id", func(ctx *http.Request, principalID, caseID int64) error {
		return h.store.RemoveOrgCaseAccess(ctx.Context(), principalID, caseID)
	}, "organisation")
}

func (h *Handlers) setGrant(w http.ResponseWriter, r *http.Request, pathKey string, set func(*http.Request, int64, int64, authz.AccessLevel, *int64) error, principalType string) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	principalID, ok := httputil.ParsePathInt64OrError(w, r, pathKey)
	if !ok {
		return
	}
	var payload grantPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	level, err := authz.ParseAccessLevel(payload.Level)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	actorID := actorFromRequest(r)
	if err := set(r, principalID, caseID, level, actorID); err != nil {
		writeServiceError(w, err)
		return
	}

	logger := audit.FromContext(r.Context())
	_ = logger.LogDataMutation(r.Context(), audit.EventTypeAuthzGrantSet, actorID, &caseID,
		audit.ResourceTypeGrant, fmt.Sprintf("%s:%d", principalType, principalID), nil,
		fmt.Sprintf("granted %s access to %s %d", level, principalType, principalID))

	httputil.WriteNoContent(w)
}

func (h *Handlers) removeGrant(w http.ResponseWriter, r *http.Request, pathKey string, remove func(*http.Request, int64, int64) error, principalType string) {
	caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
	if !ok {
		return
	}
	principalID, ok := httputil.ParsePathInt64OrError(w, r, pathKey)
	if !ok {
		return
	}

	actorID := actorFromRequest(r)
	if err := remove(r, principalID, caseID); err != nil {
		writeServiceError(w, err)
		return
	}

	logger := audit.FromContext(r.Context())
	_ = logger.LogDataMutation(r.Context(), audit.EventTypeAuthzGrantRemove, actorID, &caseID,
		audit.ResourceTypeGrant, fmt.Sprintf("%s:%d", principalType, principalID), nil,
		fmt.Sprintf("removed case access from %s %d", principalType, principalID))

	httputil.WriteNoContent(w)
}
