// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteBadRequest(w, "invalid input")
//	httputil.WriteForbidden(w, "insufficient permissions")
//
// # Request Parsing
//
// JSON bodies:
//
//	var req CreateKeyRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//
// Path and query parameters (user and document identifiers are UUIDs
// throughout):
//
//	userUUID, ok := httputil.ParsePathUUIDOrError(w, r, "uuid")
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	owner, err := httputil.ParseQueryUUID(r, "owner_uuid")
//
// Field validation:
//
//	if !httputil.RequireNonEmpty(w, req.Name, "name") {
//		return
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(apiServer)
//
// Authentication and permission checks live in pkg/middleware.
package httputil
