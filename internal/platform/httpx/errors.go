package httpx

import (
	"errors"
	"net/http"

	"github.com/larrabee/ceph/internal/shared"
)

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindInvalid:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindUnauthenticated:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses. Unknown errors become a
// bare 500 so internal details never leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	var domainErr *shared.Error
	switch {
	case errors.As(err, &domainErr):
		JSON(w, StatusFor(domainErr.Kind), ErrorBody{
			Code:      domainErr.Code,
			Component: domainErr.Component,
			Detail:    domainErr.Detail,
		})
	case errors.Is(err, shared.ErrNotFound):
		JSON(w, http.StatusNotFound, ErrorBody{Code: "not_found"})
	default:
		JSON(w, http.StatusInternalServerError, ErrorBody{Code: "internal_server_error"})
	}
}
