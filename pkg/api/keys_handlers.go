package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/paperstack/paperstack/pkg/apikey"
	"github.com/paperstack/paperstack/pkg/audit"
	"github.com/paperstack/paperstack/pkg/httputil"
	"github.com/paperstack/paperstack/pkg/store"
)

// KeyHandlers handles API key management HTTP requests
type KeyHandlers struct {
	keys  *apikey.Service
	audit audit.Logger
}

// NewKeyHandlers creates a new API key handlers instance
func NewKeyHandlers(keys *apikey.Service, auditLogger audit.Logger) *KeyHandlers {
	return &KeyHandlers{
		keys:  keys,
		audit: auditLogger,
	}
}

// RegisterRoutes registers API key management routes. The verification
// route is registered separately so the caller can gate it on
// VERIFY_API_KEY.
func (h *KeyHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/apikeys", h.createKey).Methods("POST")
	router.HandleFunc("/apikeys", h.listKeys).Methods("GET")
	router.HandleFunc("/apikeys/{id}", h.getKey).Methods("GET")
	router.HandleFunc("/apikeys/{id}", h.updateKey).Methods("PUT")
	router.HandleFunc("/apikeys/{id}", h.deleteKey).Methods("DELETE")
}

// VerifyHandler exposes the key verification endpoint for gated
// registration
func (h *KeyHandlers) VerifyHandler() http.Handler {
	return http.HandlerFunc(h.verifyKey)
}

// createKey handles POST /apikeys
func (h *KeyHandlers) createKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerUUID string     `json:"owner_uuid"`
		Name      string     `json:"name"`
		Comments  string     `json:"comments"`
		ExpiresAt *time.Time `json:"expires_at"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ownerUUID, err := uuid.Parse(req.OwnerUUID)
	if err != nil {
		httputil.WriteBadRequest(w, "owner_uuid must be a valid UUID")
		return
	}

	created, err := h.keys.Create(r.Context(), apikey.CreateRequest{
		OwnerUUID: ownerUUID,
		Name:      req.Name,
		Comments:  req.Comments,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	h.audit.LogPermissionChange(r.Context(), audit.EventTypeKeyCreate,
		&ownerUUID, audit.ResourceTypeAPIKey, created.Record.Prefix, nil,
		"api key created")

	// The plaintext key appears in this response and nowhere else.
	httputil.WriteJSON(w, http.StatusCreated, struct {
		Key    string        `json:"key"`
		Record *store.APIKey `json:"record"`
	}{
		Key:    created.Key,
		Record: created.Record,
	})
}

// listKeys handles GET /apikeys
func (h *KeyHandlers) listKeys(w http.ResponseWriter, r *http.Request) {
	var criteria store.FindAPIKeysCriteria

	ownerUUID, err := httputil.ParseQueryUUID(r, "owner_uuid")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	criteria.OwnerUUID = ownerUUID

	if enabledStr := httputil.ParseQueryString(r, "enabled", ""); enabledStr != "" {
		enabled := enabledStr == "true"
		criteria.Enabled = &enabled
	}

	keys, err := h.keys.Find(r.Context(), criteria)
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	httputil.WriteSuccess(w, keys)
}

// getKey handles GET /apikeys/{id}
func (h *KeyHandlers) getKey(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	key, err := h.keys.Fetch(r.Context(), id)
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	httputil.WriteSuccess(w, key)
}

// updateKey handles PUT /apikeys/{id}
func (h *KeyHandlers) updateKey(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name      *string    `json:"name"`
		Comments  *string    `json:"comments"`
		Enabled   *bool      `json:"enabled"`
		ExpiresAt *time.Time `json:"expires_at"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	key, err := h.keys.Fetch(r.Context(), id)
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	if req.Name != nil {
		key.Name = *req.Name
	}
	if req.Comments != nil {
		key.Comments = *req.Comments
	}
	if req.Enabled != nil {
		key.Enabled = *req.Enabled
	}
	if req.ExpiresAt != nil {
		key.ExpiresAt = req.ExpiresAt
	}

	if err := h.keys.Update(r.Context(), key); err != nil {
		writeAuthzError(w, err)
		return
	}

	h.audit.LogPermissionChange(r.Context(), audit.EventTypeKeyUpdate,
		&key.OwnerUUID, audit.ResourceTypeAPIKey, key.Prefix, nil,
		"api key updated")

	httputil.WriteSuccess(w, key)
}

// deleteKey handles DELETE /apikeys/{id}
func (h *KeyHandlers) deleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	key, err := h.keys.Fetch(r.Context(), id)
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	deleted, err := h.keys.Delete(r.Context(), id)
	if err != nil {
		writeAuthzError(w, err)
		return
	}
	if !deleted {
		httputil.WriteNotFoundError(w, "api key not found")
		return
	}

	h.audit.LogPermissionChange(r.Context(), audit.EventTypeKeyDelete,
		&key.OwnerUUID, audit.ResourceTypeAPIKey, key.Prefix, nil,
		"api key deleted")

	httputil.WriteNoContent(w)
}

// verifyKey handles POST /auth/verify. The caller presents someone else's
// credential for verification; their own identity came from the auth
// middleware and must hold VERIFY_API_KEY for this route.
func (h *KeyHandlers) verifyKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !httputil.RequireNonEmpty(w, req.Key, "key") {
		return
	}

	ref, ok, err := h.keys.Verify(r.Context(), req.Key)
	if err != nil {
		writeAuthzError(w, err)
		return
	}

	if !ok {
		h.audit.LogAuthentication(r.Context(), audit.EventTypeAuthKeyVerifyFailed,
			nil, "", audit.EventStatusFailure, "api key verification failed")
		httputil.WriteSuccess(w, verifyResponse{Valid: false})
		return
	}

	h.audit.LogAuthentication(r.Context(), audit.EventTypeAuthKeyVerified,
		&ref.UUID, ref.SubjectID, audit.EventStatusSuccess, "api key verified")

	httputil.WriteSuccess(w, verifyResponse{
		Valid:     true,
		UserUUID:  &ref.UUID,
		SubjectID: ref.SubjectID,
	})
}

type verifyResponse struct {
	Valid     bool       `json:"valid"`
	UserUUID  *uuid.UUID `json:"user_uuid,omitempty"`
	SubjectID string     `json:"subject_id,omitempty"`
}
