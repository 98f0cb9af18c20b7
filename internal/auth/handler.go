package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

const component = "auth"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	scopes  rbac.ScopeResolver
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, scopes rbac.ScopeResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, scopes: scopes}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/check", h.handleCheck)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string              `json:"token"`
	Username    string              `json:"username"`
	Permissions map[string][]string `json:"permissions"`
}

type checkResponse struct {
	Username    string              `json:"username"`
	Permissions map[string][]string `json:"permissions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, component, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, user, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	perms, err := h.permissions(r, user.Roles)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loginResponse{Token: sess.Token, Username: user.Username, Permissions: perms})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := TokenFromRequest(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, nil)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.CurrentIdentity(r.Context(), TokenFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	perms, err := h.permissions(r, identity.Roles)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Username: identity.Username, Permissions: perms})
}

func (h *Handler) permissions(r *http.Request, roles []string) (map[string][]string, error) {
	set, err := h.scopes.ScopesFor(r.Context(), roles)
	if err != nil {
		return nil, err
	}
	return set.Permissions(), nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *shared.Error
	if !isDomain(err, &domainErr) {
		h.logger.Error("auth request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isDomain(err error, target **shared.Error) bool {
	return errors.As(err, target)
}
