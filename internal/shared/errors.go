package shared

import "errors"

// Kind classifies a request-local failure for transport mapping.
type Kind int

const (
	// KindInvalid marks a request rejected by business validation.
	KindInvalid Kind = iota
	// KindNotFound marks a missing resource.
	KindNotFound
	// KindUnauthenticated marks a request without a valid session.
	KindUnauthenticated
	// KindForbidden marks a request whose identity lacks the required scope.
	KindForbidden
)

// Error is a recoverable, caller-facing failure carrying a stable code.
type Error struct {
	Kind      Kind
	Code      string
	Component string
	Detail    string
}

// NewError constructs an Error sentinel.
func NewError(kind Kind, component, code string) *Error {
	return &Error{Kind: kind, Component: component, Code: code}
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Component + ": " + e.Code + ": " + e.Detail
	}
	return e.Component + ": " + e.Code
}

// Is matches on component and code so copies produced by WithDetail still
// satisfy errors.Is against their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Component == e.Component
}

// WithDetail returns a copy of e carrying a human readable detail.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

var (
	// ErrNotFound indicates resource not found at the storage layer.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = NewError(KindInvalid, "auth", "invalid_credentials")
	// ErrUnauthenticated indicates a missing or unusable session token.
	ErrUnauthenticated = NewError(KindUnauthenticated, "auth", "unauthenticated")
	// ErrSessionExpired indicates the session was logged out or timed out.
	ErrSessionExpired = NewError(KindUnauthenticated, "auth", "session_expired")
	// ErrPermissionDenied indicates the identity lacks the required scope.
	ErrPermissionDenied = NewError(KindForbidden, "auth", "permission_denied")
)

// InvalidRequest builds a validation failure for the given component.
func InvalidRequest(component, detail string) *Error {
	return &Error{Kind: KindInvalid, Component: component, Code: "invalid_request", Detail: detail}
}
