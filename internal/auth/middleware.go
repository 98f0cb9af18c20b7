package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/shared"
)

// TokenFromRequest extracts the bearer token of the Authorization header.
func TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireIdentity resolves the request token and stores the identity in the
// request context. Requests without a valid session get a 401.
func (s *Service) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.CurrentIdentity(r.Context(), TokenFromRequest(r))
		if err != nil {
			var domainErr *shared.Error
			if !isDomain(err, &domainErr) {
				s.logger.Error("resolve identity", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}
