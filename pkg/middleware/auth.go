package middleware

import (
	"net/http"
	"strings"

	"github.com/paperstack/paperstack/pkg/apikey"
	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/identity"
	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permission"
)

// AuthMiddleware resolves the caller identity from an Authorization header
// bearing an API key and installs it on the request context. Downstream
// handlers read the identity via the identity package; the authorization
// engine does the rest.
type AuthMiddleware struct {
	apikeys  *apikey.Service
	optional bool // If true, allow requests without auth
	logger   *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(apikeys *apikey.Service, optional bool, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		apikeys:  apikeys,
		optional: optional,
		logger:   logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				// Continue without auth
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}
		token := parts[1]

		// Key verification itself runs as the internal processing identity;
		// the caller has no identity yet.
		verifyCtx := identity.Push(r.Context(), identity.ProcessingIdentity())
		ref, ok, err := m.apikeys.Verify(verifyCtx, token)
		if err != nil {
			if m.logger != nil {
				m.logger.WithError(err).Error("api key verification failed")
			}
			m.errorResponse(w, http.StatusInternalServerError, "verification failure")
			return
		}
		if !ok {
			m.unauthorizedResponse(w, "invalid or expired api key")
			return
		}

		ctx := identity.Push(r.Context(), identity.NewAPIKeyIdentity(ref))
		ctx = observability.WithUserID(ctx, ref.SubjectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	m.errorResponse(w, http.StatusUnauthorized, message)
}

func (m *AuthMiddleware) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// RequireAppPermission creates middleware that rejects callers lacking an
// application permission before the handler runs.
func RequireAppPermission(engine *authz.Engine, perm permission.AppPermission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			held, err := engine.HasAppPermission(r.Context(), perm)
			if err != nil {
				if authz.IsAuthenticationRequired(err) {
					writeJSONError(w, http.StatusUnauthorized, "authentication required")
					return
				}
				writeJSONError(w, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !held {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
