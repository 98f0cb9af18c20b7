package users

import (
	"time"

	"github.com/larrabee/ceph/internal/shared"
)

const component = "user"

// User is a dashboard account.
type User struct {
	Username        string
	PasswordHash    string
	Name            *string
	Email           *string
	Roles           []string
	Enabled         bool
	LastUpdate      time.Time
	PasswordHistory []string
}

// PasswordHashes returns the current hash followed by the history, most recent first.
func (u User) PasswordHashes() []string {
	out := make([]string, 0, len(u.PasswordHistory)+1)
	if u.PasswordHash != "" {
		out = append(out, u.PasswordHash)
	}
	return append(out, u.PasswordHistory...)
}

// CreateInput describes a new account.
type CreateInput struct {
	Username string
	Password string
	Name     *string
	Email    *string
	Roles    []string
	Enabled  bool
}

// CreateOptions alters creation rules.
type CreateOptions struct {
	// ForcePassword skips the password policy.
	ForcePassword bool
}

// Patch lists the fields of an update. Nil fields are left unchanged.
type Patch struct {
	Name     *string
	Email    *string
	Roles    *[]string
	Enabled  *bool
	Password *string
}

var (
	ErrUserNotFound             = shared.NewError(shared.KindNotFound, component, "user_does_not_exist")
	ErrUsernameTaken            = shared.NewError(shared.KindInvalid, component, "username_already_exists")
	ErrRoleDoesNotExist         = shared.NewError(shared.KindInvalid, component, "role_does_not_exist")
	ErrInvalidUserContext       = shared.NewError(shared.KindInvalid, component, "invalid_user_context")
	ErrInvalidOldPassword       = shared.NewError(shared.KindInvalid, component, "invalid_old_password")
	ErrPasswordPolicy           = shared.NewError(shared.KindInvalid, component, "password_policy_validation_failed")
	ErrCannotDeleteCurrentUser  = shared.NewError(shared.KindInvalid, component, "cannot_delete_current_user")
	ErrCannotDisableCurrentUser = shared.NewError(shared.KindInvalid, component, "cannot_disable_current_user")
	ErrUsernameRequired         = shared.InvalidRequest(component, "username is required")
)
