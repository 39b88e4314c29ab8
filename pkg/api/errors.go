package api

import (
	"errors"
	"net/http"

	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/httputil"
)

// writeAuthzError maps the authorization error taxonomy onto HTTP statuses.
// Anything unrecognized is a server fault.
func writeAuthzError(w http.ResponseWriter, err error) {
	switch {
	case authz.IsAuthenticationRequired(err):
		httputil.WriteUnauthorized(w, err.Error())
	case authz.IsPermissionDenied(err):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	default:
		httputil.WriteInternalError(w, err)
	}
}
