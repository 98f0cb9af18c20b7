package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes. Changing one's own password needs no scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionRead))).Get("/", h.listUsers)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionCreate))).Post("/", h.createUser)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionRead))).Get("/{username}", h.getUser)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionUpdate))).Put("/{username}", h.updateUser)
	r.With(h.rbac.Require(rbac.S(rbac.ResourceUser, rbac.ActionDelete))).Delete("/{username}", h.deleteUser)
	r.Post("/{username}/change_password", h.changePassword)
}

// Response is the public representation of a user. The password is never included.
type Response struct {
	Username   string   `json:"username"`
	Name       *string  `json:"name"`
	Email      *string  `json:"email"`
	Roles      []string `json:"roles"`
	LastUpdate int64    `json:"lastUpdate"`
	Enabled    bool     `json:"enabled"`
}

// ToResponse converts a User for output.
func ToResponse(u User) Response {
	userRoles := u.Roles
	if userRoles == nil {
		userRoles = []string{}
	}
	return Response{
		Username:   u.Username,
		Name:       u.Name,
		Email:      u.Email,
		Roles:      userRoles,
		LastUpdate: u.LastUpdate.Unix(),
		Enabled:    u.Enabled,
	}
}

type createRequest struct {
	Username string   `json:"username" validate:"required,max=128"`
	Password string   `json:"password"`
	Name     *string  `json:"name"`
	Email    *string  `json:"email" validate:"omitempty,email"`
	Roles    []string `json:"roles"`
	Enabled  *bool    `json:"enabled"`
}

type updateRequest struct {
	Name     *string   `json:"name"`
	Email    *string   `json:"email" validate:"omitempty,email"`
	Roles    *[]string `json:"roles"`
	Enabled  *bool     `json:"enabled"`
	Password *string   `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]Response, 0, len(list))
	for _, u := range list {
		out = append(out, ToResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, component, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	user, err := h.service.Create(r.Context(), actor(r), CreateInput{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Email:    req.Email,
		Roles:    req.Roles,
		Enabled:  enabled,
	}, CreateOptions{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.Bind(r, component, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.service.Update(r.Context(), actor(r), chi.URLParam(r, "username"), Patch(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), chi.URLParam(r, "username")); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.Bind(r, component, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.service.ChangePassword(r.Context(), actor(r), chi.URLParam(r, "username"), req.OldPassword, req.NewPassword)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nil)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) {
		h.logger.Error("user request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	identity, _ := shared.IdentityFromContext(r.Context())
	return identity.Username
}
