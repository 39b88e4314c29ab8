package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/paperstack/paperstack/pkg/apikey"
	"github.com/paperstack/paperstack/pkg/audit"
	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/docperm"
	"github.com/paperstack/paperstack/pkg/httputil"
	"github.com/paperstack/paperstack/pkg/middleware"
	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permission"
	"github.com/paperstack/paperstack/pkg/store"
)

// Dependencies collects everything the HTTP surface is built from. The
// process wiring in cmd/paperstackd constructs one of these.
type Dependencies struct {
	Engine   *authz.Engine
	Resolver *authz.GroupResolver
	Keys     *apikey.Service
	Mutator  *docperm.Mutator
	Users    store.UserStore
	Groups   store.GroupStore
	Perms    store.AppPermissionStore
	DocPerms store.DocPermissionStore
	Caches   UserCacheInvalidator
	Audit    audit.Logger
	Store    audit.Store
	Logger   *observability.Logger
}

// Server is the HTTP API. Every route sits behind the API key auth
// middleware; admin and verification routes carry additional permission
// gates.
type Server struct {
	router *mux.Router
}

// NewServer builds the API router from its dependencies
func NewServer(deps Dependencies) *Server {
	router := mux.NewRouter()

	if deps.Logger != nil {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := observability.WithLogger(r.Context(), deps.Logger)
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
	}
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.RecoveryMiddleware)
	router.Use(httputil.LoggingMiddleware)

	authn := middleware.NewAuthMiddleware(deps.Keys, false, deps.Logger)
	router.Use(authn.Handler)

	ratelimit := middleware.NewRateLimitMiddleware()
	router.Use(ratelimit.Handler)

	auditMW := audit.NewMiddleware(deps.Audit, false)
	router.Use(auditMW.Handler)

	// Key management: the service enforces the own-or-MANAGE_USERS rule.
	keyHandlers := NewKeyHandlers(deps.Keys, deps.Audit)
	keyHandlers.RegisterRoutes(router)

	// Key verification requires the dedicated permission.
	router.Path("/auth/verify").Methods("POST").Handler(
		middleware.RequireAppPermission(deps.Engine, permission.AppPermissionVerifyAPIKey)(
			keyHandlers.VerifyHandler()))

	// Administration and document permissions.
	adminHandlers := NewAdminHandlers(deps.Engine, deps.Resolver, deps.Users,
		deps.Groups, deps.Perms, deps.Caches, deps.Audit)
	adminHandlers.RegisterRoutes(router)

	docHandlers := NewDocPermHandlers(deps.Engine, deps.Mutator, deps.DocPerms, deps.Audit)
	docHandlers.RegisterRoutes(router)

	// Audit querying, gated on VIEW_SYSTEM.
	if deps.Store != nil {
		auditRouter := router.PathPrefix("").Subrouter()
		auditRouter.Use(middleware.RequireAppPermission(deps.Engine, permission.AppPermissionViewSystem))
		audit.NewHandlers(deps.Store).RegisterRoutes(auditRouter)
	}

	return &Server{router: router}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
