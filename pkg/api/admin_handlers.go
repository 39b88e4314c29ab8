package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/paperstack/paperstack/pkg/audit"
	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/httputil"
	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/permission"
	"github.com/paperstack/paperstack/pkg/store"
)

// UserCacheInvalidator drops cached entries for a user after an admin
// mutation. *permcache.Caches satisfies this.
type UserCacheInvalidator interface {
	InvalidateUser(userUUID uuid.UUID)
}

// AdminHandlers handles user, group and application permission
// administration. Every route is gated on MANAGE_USERS.
type AdminHandlers struct {
	engine   *authz.Engine
	resolver *authz.GroupResolver
	users    store.UserStore
	groups   store.GroupStore
	perms    store.AppPermissionStore
	caches   UserCacheInvalidator
	audit    audit.Logger
}

// NewAdminHandlers creates a new admin handlers instance
func NewAdminHandlers(engine *authz.Engine, resolver *authz.GroupResolver, users store.UserStore, groups store.GroupStore, perms store.AppPermissionStore, caches UserCacheInvalidator, auditLogger audit.Logger) *AdminHandlers {
	return &AdminHandlers{
		engine:   engine,
		resolver: resolver,
		users:    users,
		groups:   groups,
		perms:    perms,
		caches:   caches,
		audit:    auditLogger,
	}
}

// actingUUID returns the UUID of the caller identity, for audit attribution
func actingUUID(r *http.Request) *uuid.UUID {
	id, ok := identity.Current(r.Context())
	if !ok {
		return nil
	}
	u := id.Ref.UUID
	return &u
}

// RegisterRoutes registers administration routes
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	// User routes
	router.HandleFunc("/admin/users", h.createUser).Methods("POST")
	router.HandleFunc("/admin/users/{uuid}", h.getUser).Methods("GET")
	router.HandleFunc("/admin/users/{uuid}/enable", h.enableUser).Methods("POST")
	router.HandleFunc("/admin/users/{uuid}/disable", h.disableUser).Methods("POST")

	// Group membership routes
	router.HandleFunc("/admin/users/{uuid}/groups/{group_uuid}", h.addMembership).Methods("PUT")
	router.HandleFunc("/admin/users/{uuid}/groups/{group_uuid}", h.removeMembership).Methods("DELETE")

	// Application permission routes
	router.HandleFunc("/admin/users/{uuid}/permissions", h.listPermissions).Methods("GET")
	router.HandleFunc("/admin/users/{uuid}/permissions", h.grantPermission).Methods("POST")
	router.HandleFunc("/admin/users/{uuid}/permissions/{permission}", h.revokePermission).Methods("DELETE")
	router.HandleFunc("/admin/users/{uuid}/permissions/report", h.permissionReport).Methods("GET")
}

// createUser handles POST /admin/users
func (h *AdminHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID   string `json:"subject_id"`
		DisplayName string `json:"display_name"`
		IsGroup     bool   `json:"is_group"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !httputil.RequireNonEmpty(w, req.SubjectID, "subject_id") {
		return
	}

	user := &store.User{
		UUID:        uuid.New(),
		SubjectID:   req.SubjectID,
		DisplayName: req.DisplayName,
		IsGroup:     req.IsGroup,
		Enabled:     true,
	}

	err := h.engine.Secure(r.Context(), permission.AppPermissionManageUsers, func(ctx context.Context) error {
		return h.users.Create(ctx, user)
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.audit.LogAdminAction(r.Context(), audit.EventTypeAdminUserCreate,
		actingUUID(r), &user.UUID, "user created: "+user.SubjectID)

	httputil.WriteCreated(w, user)
}

// getUser handles GET /admin/users/{uuid}
func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	user, err := authz.SecureResult(r.Context(), h.engine, permission.AppPermissionManageUsers,
		func(ctx context.Context) (*store.User, error) {
			return h.users.GetByUUID(ctx, userUUID)
		})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// enableUser handles POST /admin/users/{uuid}/enable
func (h *AdminHandlers) enableUser(w http.ResponseWriter, r *http.Request) {
	h.setUserEnabled(w, r, true, audit.EventTypeAdminUserEnable, "user enabled")
}

// disableUser handles POST /admin/users/{uuid}/disable
func (h *AdminHandlers) disableUser(w http.ResponseWriter, r *http.Request) {
	h.setUserEnabled(w, r, false, audit.EventTypeAdminUserDisable, "user disabled")
}

func (h *AdminHandlers) setUserEnabled(w http.ResponseWriter, r *http.Request, enabled bool, eventType audit.EventType, message string) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	err := h.engine.Secure(r.Context(), permission.AppPermissionManageUsers, func(ctx context.Context) error {
		return h.users.SetEnabled(ctx, userUUID, enabled)
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.caches.InvalidateUser(userUUID)
	h.audit.LogAdminAction(r.Context(), eventType, actingUUID(r), &userUUID, message)

	httputil.WriteSuccess(w, map[string]bool{"enabled": enabled})
}

// addMembership handles PUT /admin/users/{uuid}/groups/{group_uuid}
func (h *AdminHandlers) addMembership(w http.ResponseWriter, r *http.Request) {
	h.changeMembership(w, r, true)
}

// removeMembership handles DELETE /admin/users/{uuid}/groups/{group_uuid}
func (h *AdminHandlers) removeMembership(w http.ResponseWriter, r *http.Request) {
	h.changeMembership(w, r, false)
}

func (h *AdminHandlers) changeMembership(w http.ResponseWriter, r *http.Request, add bool) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}
	groupUUID, ok := httputil.ParsePathUUIDOrError(w, r, "group_uuid")
	if !ok {
		return
	}

	err := h.engine.Secure(r.Context(), permission.AppPermissionManageUsers, func(ctx context.Context) error {
		if add {
			return h.groups.AddMembership(ctx, userUUID, groupUUID)
		}
		return h.groups.RemoveMembership(ctx, userUUID, groupUUID)
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	// Membership edits change what the user transitively holds.
	h.caches.InvalidateUser(userUUID)

	message := "group membership removed"
	if add {
		message = "group membership added"
	}
	h.audit.LogAdminAction(r.Context(), audit.EventTypeAdminGroupChange,
		actingUUID(r), &userUUID, message)

	if add {
		httputil.WriteCreated(w, map[string]string{"status": "added"})
		return
	}
	httputil.WriteNoContent(w)
}

// listPermissions handles GET /admin/users/{uuid}/permissions
func (h *AdminHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	perms, err := authz.SecureResult(r.Context(), h.engine, permission.AppPermissionManageUsers,
		func(ctx context.Context) ([]permission.AppPermission, error) {
			return h.perms.GetPermissionsForUser(ctx, userUUID)
		})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	httputil.WriteSuccess(w, perms)
}

// validAppPermissions lists the grantable application permissions
var validAppPermissions = map[permission.AppPermission]bool{
	permission.AppPermissionAdministrator: true,
	permission.AppPermissionManageUsers:   true,
	permission.AppPermissionManageAPIKeys: true,
	permission.AppPermissionManageCache:   true,
	permission.AppPermissionVerifyAPIKey:  true,
	permission.AppPermissionViewSystem:    true,
}

// grantPermission handles POST /admin/users/{uuid}/permissions
func (h *AdminHandlers) grantPermission(w http.ResponseWriter, r *http.Request) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	var req struct {
		Permission string `json:"permission"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm := permission.AppPermission(req.Permission)
	if !validAppPermissions[perm] {
		httputil.WriteBadRequest(w, "invalid permission")
		return
	}

	err := h.engine.Secure(r.Context(), permission.AppPermissionManageUsers, func(ctx context.Context) error {
		return h.perms.AddPermission(ctx, userUUID, perm)
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.caches.InvalidateUser(userUUID)
	h.audit.LogPermissionChange(r.Context(), audit.EventTypeAuthzPermissionGrant,
		&userUUID, audit.ResourceTypePermission, perm.String(), nil,
		"application permission granted")

	httputil.WriteCreated(w, map[string]string{
		"status":     "granted",
		"permission": perm.String(),
	})
}

// revokePermission handles DELETE /admin/users/{uuid}/permissions/{permission}
func (h *AdminHandlers) revokePermission(w http.ResponseWriter, r *http.Request) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	vars := httputil.GetPathVars(r)
	perm := permission.AppPermission(vars["permission"])
	if !validAppPermissions[perm] {
		httputil.WriteBadRequest(w, "invalid permission")
		return
	}

	err := h.engine.Secure(r.Context(), permission.AppPermissionManageUsers, func(ctx context.Context) error {
		return h.perms.RemovePermission(ctx, userUUID, perm)
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.caches.InvalidateUser(userUUID)
	h.audit.LogPermissionChange(r.Context(), audit.EventTypeAuthzPermissionRevoke,
		&userUUID, audit.ResourceTypePermission, perm.String(), nil,
		"application permission revoked")

	httputil.WriteNoContent(w)
}

// permissionReport handles GET /admin/users/{uuid}/permissions/report. The
// report explains every permission the user holds and the membership chain
// that conferred it.
func (h *AdminHandlers) permissionReport(w http.ResponseWriter, r *http.Request) {
	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	paths, err := authz.SecureResult(r.Context(), h.engine, permission.AppPermissionManageUsers,
		func(ctx context.Context) (map[permission.AppPermission][]authz.Path, error) {
			return h.resolver.TransitiveGroupsWithPaths(ctx, userUUID)
		})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	report := make(map[string][]string, len(paths))
	for perm, permPaths := range paths {
		chains := make([]string, 0, len(permPaths))
		for _, p := range permPaths {
			chains = append(chains, p.String())
		}
		report[perm.String()] = chains
	}

	httputil.WriteSuccess(w, report)
}
