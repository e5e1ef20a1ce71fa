package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/cases"
	"github.com/casetrail/casetrail/pkg/directory"
	"github.com/casetrail/casetrail/pkg/httputil"
	"github.com/casetrail/casetrail/pkg/middleware"
	"github.com/casetrail/casetrail/pkg/observability"
)

// Dependencies holds everything the API server composes. All fields are
// required unless noted otherwise.
type Dependencies struct {
	Logger       *observability.Logger
	Metrics      *observability.Metrics // optional, enables HTTP metrics
	AuditLogger  audit.Logger
	AuditStore   audit.Store
	TokenManager *auth.TokenManager
	Directory    directory.Service
	Cases        cases.Service
	AuthzStore   *authz.Store
	Gate         *authz.Gate

	// RateLimiter wraps the whole API when set. Either the in-memory or
	// the Redis-backed middleware from pkg/middleware fits here.
	RateLimiter func(http.Handler) http.Handler

	// Settings is the sanitized runtime configuration served on
	// GET /settings. Optional.
	Settings *Settings
}

// Server is the assembled HTTP API
type Server struct {
	handler http.Handler
	router  *mux.Router
}

// NewServer assembles the API router and its middleware chain
func NewServer(deps Dependencies) *Server {
	router := mux.NewRouter()

	s := &Server{router: router}
	s.registerRoutes(router, deps)

	// Innermost first: rate limiting runs after authentication so limits
	// key by user rather than IP for authenticated traffic.
	handler := http.Handler(router)
	if deps.RateLimiter != nil {
		handler = deps.RateLimiter(handler)
	}

	authMW := middleware.NewAuthMiddleware(deps.TokenManager, deps.Directory, false)
	handler = authMW.Handler(handler)

	handler = audit.NewMiddleware(deps.AuditLogger, false).Handler(handler)

	if deps.Metrics != nil {
		handler = observability.HTTPMetricsMiddleware(deps.Metrics)(handler)
	}

	handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
	)(handler)

	s.handler = handler
	return s
}

func (s *Server) registerRoutes(router *mux.Router, deps Dependencies) {
	gate := deps.Gate

	// guarded returns a subrouter whose routes all pass through the
	// given authorization middleware.
	guarded := func(mws ...func(http.Handler) http.Handler) *mux.Router {
		sub := router.NewRoute().Subrouter()
		for _, mw := range mws {
			sub.Use(mw)
		}
		return sub
	}

	// Case management: per-route guards live inside the cases package.
	caseHandlers := cases.NewHandlers(deps.Cases, deps.AuthzStore, gate)
	caseHandlers.RegisterCaseRoutes(router)
	caseHandlers.RegisterAlertRoutes(router)
	caseHandlers.RegisterSearchRoutes(router)

	// Principal directory
	dirHandlers := directory.NewHandlers(deps.Directory)
	dirHandlers.RegisterUserRoutes(guarded(
		authz.RequireAnyPermission(gate, "user", "read",
			authz.PermReadUsers, authz.PermManageUsers, authz.PermServerAdministrator)))
	dirHandlers.RegisterAdminRoutes(guarded(
		authz.RequireAnyPermission(gate, "user", "manage",
			authz.PermManageUsers, authz.PermServerAdministrator)))
	dirHandlers.RegisterOrgRoutes(guarded(
		authz.RequireAnyPermission(gate, "customer", "read",
			authz.PermCustomersRead, authz.PermCustomersWrite, authz.PermServerAdministrator)))
	dirHandlers.RegisterOrgAdminRoutes(guarded(
		authz.RequireAnyPermission(gate, "customer", "write",
			authz.PermCustomersWrite, authz.PermServerAdministrator)))

	// Activity trail. The global feed needs all_activities_read; the
	// per-case feed additionally needs read access to the case.
	auditHandlers := audit.NewHandlers(deps.AuditStore)
	auditHandlers.RegisterRoutes(guarded(
		authz.RequireAnyPermission(gate, "activity", "list",
			authz.PermAllActivitiesRead, authz.PermServerAdministrator)))
	auditHandlers.RegisterCaseRoutes(guarded(
		authz.RequireAnyPermission(gate, "activity", "list_case",
			authz.PermActivitiesRead, authz.PermAllActivitiesRead, authz.PermServerAdministrator),
		authz.RequireCaseAccess(gate, "activity", "read", authz.AccessReadOnly)))

	// API token self-service for the authenticated user
	tokenHandlers := newTokenHandlers(deps.TokenManager, deps.AuditLogger)
	tokenHandlers.registerRoutes(guarded(
		authz.RequireAnyPermission(gate, "token", "manage", authz.PermStandardUser)))

	// Sanitized runtime settings
	if deps.Settings != nil {
		settingsHandlers := newSettingsHandlers(deps.Settings)
		settingsHandlers.registerRoutes(guarded(
			authz.RequireAnyPermission(gate, "settings", "read",
				authz.PermServerSettingsRead, authz.PermServerSettingsWrite, authz.PermServerAdministrator)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
