package directory

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/contextkeys"
	"github.com/casetrail/casetrail/pkg/httputil"
)

// Handlers provides HTTP handlers for the principal directory
type Handlers struct {
	service Service
}

// NewHandlers creates new directory handlers
func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterUserRoutes registers read-only user routes. The caller guards
// them with the read_users permission.
func (h *Handlers) RegisterUserRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.listUsers).Methods("GET")
	router.HandleFunc("/users/{user_id}", h.getUser).Methods("GET")
	router.HandleFunc("/users/{user_id}/groups", h.listUserGroups).Methods("GET")
	router.HandleFunc("/users/{user_id}/organisations", h.listUserOrgs).Methods("GET")
	router.HandleFunc("/users/{user_id}/permissions", h.getUserPermissions).Methods("GET")
	router.HandleFunc("/groups", h.listGroups).Methods("GET")
	router.HandleFunc("/groups/{group_id}", h.getGroup).Methods("GET")
	router.HandleFunc("/groups/{group_id}/members", h.listGroupMembers).Methods("GET")
	router.HandleFunc("/groups/{group_id}/permissions", h.getGroupPermissions).Methods("GET")
}

// RegisterOrgRoutes registers read-only organisation routes. The caller
// guards them with the customers_read permission.
func (h *Handlers) RegisterOrgRoutes(router *mux.Router) {
	router.HandleFunc("/organisations", h.listOrgs).Methods("GET")
	router.HandleFunc("/organisations/{org_id}", h.getOrg).Methods("GET")
	router.HandleFunc("/organisations/{org_id}/members", h.listOrgMembers).Methods("GET")
}

// RegisterAdminRoutes registers mutating routes. The caller guards them
// with the manage_users permission.
func (h *Handlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.createUser).Methods("POST")
	router.HandleFunc("/users/{user_id}", h.updateUser).Methods("PATCH")
	router.HandleFunc("/users/{user_id}", h.deleteUser).Methods("DELETE")
	router.HandleFunc("/users/{user_id}/permissions", h.setUserPermissions).Methods("PUT")
	router.HandleFunc("/groups", h.createGroup).Methods("POST")
	router.HandleFunc("/groups/{group_id}", h.updateGroup).Methods("PATCH")
	router.HandleFunc("/groups/{group_id}", h.deleteGroup).Methods("DELETE")
	router.HandleFunc("/groups/{group_id}/members/{user_id}", h.addGroupMember).Methods("PUT")
	router.HandleFunc("/groups/{group_id}/members/{user_id}", h.removeGroupMember).Methods("DELETE")
	router.HandleFunc("/groups/{group_id}/permissions", h.setGroupPermissions).Methods("PUT")
}

// RegisterOrgAdminRoutes registers mutating organisation routes. The
// caller guards them with the customers_write permission.
func (h *Handlers) RegisterOrgAdminRoutes(router *mux.Router) {
	router.HandleFunc("/organisations", h.createOrg).Methods("POST")
	router.HandleFunc("/organisations/{org_id}", h.updateOrg).Methods("PATCH")
	router.HandleFunc("/organisations/{org_id}", h.deleteOrg).Methods("DELETE")
	router.HandleFunc("/organisations/{org_id}/members/{user_id}", h.addOrgMember).Methods("PUT")
	router.HandleFunc("/organisations/{org_id}/members/{user_id}", h.removeOrgMember).Methods("DELETE")
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
	case errors.Is(err, ErrAlreadyExists):
		httputil.WriteConflict(w, "already exists")
	case errors.As(err, &invalid):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

// permissionsPayload is the body for permission assignment endpoints
type permissionsPayload struct {
	Permissions []string `json:"permissions"`
}

func (p permissionsPayload) toSet() (authz.PermissionSet, error) {
	set := authz.NewPermissionSet()
	for _, name := range p.Permissions {
		perm, err := authz.ParsePermission(name)
		if err != nil {
			return nil, err
		}
		set.Add(perm)
	}
	return set, nil
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users, "count": len(users)})
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	user, err := h.service.CreateUser(r.Context(), req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, user)
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listUserGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	groups, err := h.service.ListUserGroups(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"groups": groups, "count": len(groups)})
}

func (h *Handlers) listUserOrgs(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	orgs, err := h.service.ListUserOrgs(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organisations": orgs, "count": len(orgs)})
}

func (h *Handlers) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	perms, err := h.service.GetUserPermissions(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms.Slice()})
}

func (h *Handlers) setUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var payload permissionsPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	perms, err := payload.toSet()
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.service.SetUserPermissions(r.Context(), id, perms, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms.Slice()})
}

func (h *Handlers) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"groups": groups, "count": len(groups)})
}

func (h *Handlers) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, group)
}

func (h *Handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, group)
}

func (h *Handlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	var req UpdateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	group, err := h.service.UpdateGroup(r.Context(), id, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, group)
}

func (h *Handlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	members, err := h.service.ListGroupMembers(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members, "count": len(members)})
}

func (h *Handlers) addGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.service.AddGroupMember(r.Context(), groupID, userID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.service.RemoveGroupMember(r.Context(), groupID, userID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) getGroupPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	perms, err := h.service.GetGroupPermissions(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms.Slice()})
}

func (h *Handlers) setGroupPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !ok {
		return
	}
	var payload permissionsPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	perms, err := payload.toSet()
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.service.SetGroupPermissions(r.Context(), id, perms, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms.Slice()})
}

func (h *Handlers) listOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.ListOrgs(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organisations": orgs, "count": len(orgs)})
}

func (h *Handlers) getOrg(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	org, err := h.service.GetOrg(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (h *Handlers) createOrg(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	org, err := h.service.CreateOrg(r.Context(), req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, org)
}

func (h *Handlers) updateOrg(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	var req UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := h.service.UpdateOrg(r.Context(), id, req, actorFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (h *Handlers) deleteOrg(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	if err := h.service.DeleteOrg(r.Context(), id, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) listOrgMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	members, err := h.service.ListOrgMembers(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members, "count": len(members)})
}

func (h *Handlers) addOrgMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.service.AddOrgMember(r.Context(), orgID, userID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) removeOrgMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.service.RemoveOrgMember(r.Context(), orgID, userID, actorFromRequest(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
