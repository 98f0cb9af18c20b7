package rbac

import (
	"log/slog"
	"net/http"

	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/shared"
)

// Middleware wires Guard checks into HTTP handlers.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// Require ensures the current identity holds all of the given scopes before
// the handler runs.
func (m Middleware) Require(scopes ...Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if err := m.Guard.Authorize(r.Context(), identity, scopes...); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("rbac require",
						slog.String("username", identity.Username),
						slog.String("path", r.URL.Path),
						slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
