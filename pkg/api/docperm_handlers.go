package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/paperstack/paperstack/pkg/audit"
	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/docperm"
	"github.com/paperstack/paperstack/pkg/httputil"
	"github.com/paperstack/paperstack/pkg/permission"
	"github.com/paperstack/paperstack/pkg/store"
)

// DocPermHandlers handles document permission HTTP requests. Reads require
// OWNER on the document; mutations go through the mutator, which enforces
// its own owner gate per touched node.
type DocPermHandlers struct {
	engine  *authz.Engine
	mutator *docperm.Mutator
	perms   store.DocPermissionStore
	audit   audit.Logger
}

// NewDocPermHandlers creates a new document permission handlers instance
func NewDocPermHandlers(engine *authz.Engine, mutator *docperm.Mutator, perms store.DocPermissionStore, auditLogger audit.Logger) *DocPermHandlers {
	return &DocPermHandlers{
		engine:  engine,
		mutator: mutator,
		perms:   perms,
		audit:   auditLogger,
	}
}

// RegisterRoutes registers document permission routes
func (h *DocPermHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/documents/{uuid}/permissions", h.getPermissions).Methods("GET")
	router.HandleFunc("/documents/{uuid}/permissions", h.applyChanges).Methods("POST")
	router.HandleFunc("/documents/{uuid}/permissions", h.clearPermissions).Methods("DELETE")
}

// grantPayload is the wire form of a single grant
type grantPayload struct {
	UserUUID   string `json:"user_uuid"`
	Permission string `json:"permission"`
}

// validDocPermissions lists the grantable document permissions
var validDocPermissions = map[permission.DocumentPermission]bool{
	permission.DocumentPermissionUse:    true,
	permission.DocumentPermissionRead:   true,
	permission.DocumentPermissionWrite:  true,
	permission.DocumentPermissionOwner:  true,
	permission.DocumentPermissionCreate: true,
}

// parseGrants converts wire grants into domain grants, rejecting malformed
// UUIDs and unknown permission names
func parseGrants(w http.ResponseWriter, payloads []grantPayload) ([]permission.Grant, bool) {
	grants := make([]permission.Grant, 0, len(payloads))
	for _, p := range payloads {
		userUUID, err := uuid.Parse(p.UserUUID)
		if err != nil {
			httputil.WriteBadRequest(w, "user_uuid must be a valid UUID")
			return nil, false
		}
		perm := permission.DocumentPermission(p.Permission)
		if !validDocPermissions[perm] {
			httputil.WriteBadRequest(w, "invalid permission: "+p.Permission)
			return nil, false
		}
		grants = append(grants, permission.Grant{UserUUID: userUUID, Permission: perm})
	}
	return grants, true
}

// getPermissions handles GET /documents/{uuid}/permissions
func (h *DocPermHandlers) getPermissions(w http.ResponseWriter, r *http.Request) {
	docUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	owner, err := h.engine.HasDocumentPermission(r.Context(), docUUID, permission.DocumentPermissionOwner)
	if err != nil {
		writeAuthzError(w, err)
		return
	}
	if !owner {
		h.audit.LogAuthorization(r.Context(), audit.EventTypeAuthzAccessDenied,
			actingUUID(r), audit.ResourceTypeDocument, docUUID.String(),
			audit.EventStatusDenied, "permission map read denied")
		httputil.WriteForbidden(w, "owner permission required")
		return
	}

	perms, err := authz.InsecureResult(r.Context(), h.engine,
		func(ctx context.Context) (*permission.DocumentPermissions, error) {
			return h.perms.GetPermissionsForDocument(ctx, docUUID)
		})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	httputil.WriteSuccess(w, perms)
}

// applyChanges handles POST /documents/{uuid}/permissions
func (h *DocPermHandlers) applyChanges(w http.ResponseWriter, r *http.Request) {
	docUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	var req struct {
		Add     []grantPayload `json:"add"`
		Remove  []grantPayload `json:"remove"`
		Clear   bool           `json:"clear"`
		Cascade string         `json:"cascade"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	cascade := docperm.Cascade(req.Cascade)
	switch cascade {
	case "", docperm.CascadeNone, docperm.CascadeChangesOnly, docperm.CascadeAll:
	default:
		httputil.WriteBadRequest(w, "invalid cascade: "+req.Cascade)
		return
	}

	add, ok := parseGrants(w, req.Add)
	if !ok {
		return
	}
	remove, ok := parseGrants(w, req.Remove)
	if !ok {
		return
	}

	err := h.mutator.Apply(r.Context(), docperm.ChangeRequest{
		DocumentUUID: docUUID,
		Changes:      docperm.ChangeSet{Add: add, Remove: remove},
		Clear:        req.Clear,
		Cascade:      cascade,
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.audit.LogPermissionChange(r.Context(), audit.EventTypeAuthzPermissionGrant,
		actingUUID(r), audit.ResourceTypeDocument, docUUID.String(),
		&audit.ChangeDetails{
			After: map[string]interface{}{
				"added":   len(add),
				"removed": len(remove),
				"cleared": req.Clear,
				"cascade": string(cascade),
			},
		},
		"document permissions changed")

	httputil.WriteSuccess(w, map[string]string{"status": "applied"})
}

// clearPermissions handles DELETE /documents/{uuid}/permissions
func (h *DocPermHandlers) clearPermissions(w http.ResponseWriter, r *http.Request) {
	docUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
	if !ok {
		return
	}

	err := h.mutator.Apply(r.Context(), docperm.ChangeRequest{
		DocumentUUID: docUUID,
		Clear:        true,
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.audit.LogPermissionChange(r.Context(), audit.EventTypeAuthzPermissionClear,
		actingUUID(r), audit.ResourceTypeDocument, docUUID.String(), nil,
		"document permissions cleared")

	httputil.WriteNoContent(w)
}
