package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larrabee/ceph/internal/audit"
	"github.com/larrabee/ceph/internal/auth"
	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/users"
)

// RouterParams bundles dependencies for HTTP routing.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Components *Components
}

// NewRouter constructs the HTTP router.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := params.Components

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: c.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(RequestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", c.Metrics.Handler())

	guard := rbac.Middleware{Guard: c.Guard, Logger: logger}
	authHandler := auth.NewHandler(logger, c.Auth, c.Roles)
	usersHandler := users.NewHandler(logger, c.Users, guard)
	rolesHandler := roles.NewHandler(logger, c.Roles, guard)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Use(LoginRateLimit(params.Config.AuthRateLimit))
			authHandler.MountRoutes(ar)
		})
		api.Group(func(protected chi.Router) {
			protected.Use(c.Auth.RequireIdentity)
			protected.Route("/user", usersHandler.MountRoutes)
			protected.Route("/role", rolesHandler.MountRoutes)
			if c.Audit != nil {
				protected.Route("/audit", audit.NewHandler(logger, c.Audit, guard).MountRoutes)
			}
		})
	})

	return r
}
