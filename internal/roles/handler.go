package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

// Handler exposes role management endpoints.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registry: registry, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionRead))).Get("/", h.list)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionRead))).Get("/{name}", h.get)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionCreate))).Post("/", h.create)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionUpdate))).Put("/{name}", h.update)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionDelete))).Delete("/{name}", h.delete)
}

type roleResponse struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Scopes      map[string][]string `json:"scopes_permissions"`
	System      bool                `json:"system"`
}

type roleRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description" validate:"max=256"`
	Scopes      map[string][]string `json:"scopes_permissions"`
}

func toResponse(role Role) roleResponse {
	return roleResponse{Name: role.Name, Description: role.Description, Scopes: role.Scopes.Permissions(), System: role.System}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.registry.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]roleResponse, 0, len(all))
	for _, role := range all {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, err := h.bind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.registry.Create(r.Context(), actor(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	in, err := h.bind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.registry.Update(r.Context(), actor(r), chi.URLParam(r, "name"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), actor(r), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) bind(r *http.Request) (Input, error) {
	var req roleRequest
	if err := httpx.Bind(r, component, &req); err != nil {
		return Input{}, err
	}
	scopes, err := rbac.FromPermissions(req.Scopes)
	if err != nil {
		return Input{}, ErrInvalidScope.WithDetail(err.Error())
	}
	return Input{Name: req.Name, Description: req.Description, Scopes: scopes}, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) {
		h.logger.Error("role request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	identity, _ := shared.IdentityFromContext(r.Context())
	return identity.Username
}
