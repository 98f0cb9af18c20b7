package roles

import (
	"time"

	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

const component = "role"

// Role grants a set of scopes. System roles are built in and immutable.
type Role struct {
	Name        string
	Description string
	Scopes      rbac.ScopeSet
	System      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Input carries the mutable fields of a custom role.
type Input struct {
	Name        string
	Description string
	Scopes      rbac.ScopeSet
}

var (
	ErrRoleNotFound   = shared.NewError(shared.KindNotFound, component, "role_does_not_exist")
	ErrRoleExists     = shared.NewError(shared.KindInvalid, component, "role_already_exists")
	ErrSystemRole     = shared.NewError(shared.KindInvalid, component, "cannot_modify_system_role")
	ErrRoleInUse      = shared.NewError(shared.KindInvalid, component, "role_is_associated_with_user")
	ErrInvalidScope   = shared.NewError(shared.KindInvalid, component, "invalid_scope")
	ErrRoleNameNeeded = shared.InvalidRequest(component, "role name is required")
)

func (r Role) clone() Role {
	scopes := make(rbac.ScopeSet, len(r.Scopes))
	scopes.Merge(r.Scopes)
	r.Scopes = scopes
	return r
}
