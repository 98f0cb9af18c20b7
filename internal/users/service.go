package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/larrabee/ceph/internal/passwordpolicy"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
)

// RoleChecker reports whether a role name is known.
type RoleChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, username string) error
}

// PolicyObserver is notified of rejected passwords.
type PolicyObserver interface {
	PolicyViolation(rule string)
}

// ServiceConfig tunes password handling.
type ServiceConfig struct {
	// HistorySize bounds the previous hashes kept for the reuse check.
	HistorySize int
	BcryptCost  int
}

// Deps groups the collaborators of Service. Sessions, Audit, Observer and
// Logger are optional.
type Deps struct {
	Repo     RepositoryPort
	Roles    RoleChecker
	Policy   *passwordpolicy.Engine
	Sessions SessionRevoker
	Audit    shared.AuditRecorder
	Observer PolicyObserver
	Logger   *slog.Logger
}

// Service implements account administration.
type Service struct {
	repo     RepositoryPort
	roles    RoleChecker
	policy   *passwordpolicy.Engine
	sessions SessionRevoker
	audit    shared.AuditRecorder
	observer PolicyObserver
	logger   *slog.Logger
	cfg      ServiceConfig
}

// NewService builds Service instance.
func NewService(deps Deps, cfg ServiceConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     deps.Repo,
		roles:    deps.Roles,
		policy:   deps.Policy,
		sessions: deps.Sessions,
		audit:    deps.Audit,
		observer: deps.Observer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, username string) (User, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		return User{}, s.mapNotFound(err, "get", username)
	}
	return user, nil
}

// List returns every user in creation order.
func (s *Service) List(ctx context.Context) ([]User, error) {
	list, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return list, nil
}

// Create adds a new account. The username is checked first so a duplicate is
// always reported as such regardless of the other fields.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput, opts CreateOptions) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return User{}, ErrUsernameRequired
	}
	if _, err := s.repo.GetUser(ctx, in.Username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, shared.ErrNotFound) {
		return User{}, fmt.Errorf("users: lookup %s: %w", in.Username, err)
	}

	userRoles := dedupe(in.Roles)
	if err := s.checkRoles(ctx, userRoles); err != nil {
		return User{}, err
	}

	user := User{
		Username: in.Username,
		Name:     in.Name,
		Email:    in.Email,
		Roles:    userRoles,
		Enabled:  in.Enabled,
	}
	if in.Password != "" {
		if !opts.ForcePassword {
			if err := s.validatePassword(in.Username, in.Password, nil); err != nil {
				return User{}, err
			}
		}
		hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
		if err != nil {
			return User{}, err
		}
		user.PasswordHash = hash
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, err
		}
		return User{}, fmt.Errorf("users: create %s: %w", in.Username, err)
	}
	s.record(ctx, actor, "user.create", created.Username, map[string]any{"roles": created.Roles, "enabled": created.Enabled})
	return created, nil
}

// Update applies patch atomically. Nothing is written when any check fails.
// Checks that need no row lock run before the mutation so the transaction
// never waits on a second connection.
func (s *Service) Update(ctx context.Context, actor, username string, patch Patch) (User, error) {
	var newRoles []string
	if patch.Roles != nil || patch.Enabled != nil {
		if _, err := s.repo.GetUser(ctx, username); err != nil {
			return User{}, s.mapNotFound(err, "update", username)
		}
		if patch.Enabled != nil && !*patch.Enabled && username == actor {
			return User{}, ErrCannotDisableCurrentUser
		}
		if patch.Roles != nil {
			newRoles = dedupe(*patch.Roles)
			if err := s.checkRoles(ctx, newRoles); err != nil {
				return User{}, err
			}
		}
	}

	updated, err := s.repo.MutateUser(ctx, username, func(u *User) error {
		if patch.Roles != nil {
			u.Roles = newRoles
		}
		if patch.Password != nil && *patch.Password != "" {
			if err := s.replacePassword(u, *patch.Password, false); err != nil {
				return err
			}
		}
		if patch.Name != nil {
			u.Name = patch.Name
		}
		if patch.Email != nil {
			u.Email = patch.Email
		}
		if patch.Enabled != nil {
			u.Enabled = *patch.Enabled
		}
		return nil
	})
	if err != nil {
		return User{}, s.mapNotFound(err, "update", username)
	}
	if !updated.Enabled {
		s.revoke(ctx, username)
	}
	s.record(ctx, actor, "user.update", username, map[string]any{"fields": patch.fields()})
	return updated, nil
}

// Delete removes an account and ends its sessions.
func (s *Service) Delete(ctx context.Context, actor, username string) error {
	if _, err := s.repo.GetUser(ctx, username); err != nil {
		return s.mapNotFound(err, "delete", username)
	}
	if username == actor {
		return ErrCannotDeleteCurrentUser
	}
	if err := s.repo.DeleteUser(ctx, username); err != nil {
		return s.mapNotFound(err, "delete", username)
	}
	s.revoke(ctx, username)
	s.record(ctx, actor, "user.delete", username, nil)
	return nil
}

// ChangePassword lets a user replace their own password. The actor check
// precedes any lookup so a foreign target never reveals whether it exists.
func (s *Service) ChangePassword(ctx context.Context, actor, username, oldPassword, newPassword string) error {
	if actor == "" || username != actor {
		return ErrInvalidUserContext
	}
	_, err := s.repo.MutateUser(ctx, username, func(u *User) error {
		if !CheckPassword(u.PasswordHash, oldPassword) {
			return ErrInvalidOldPassword
		}
		return s.replacePassword(u, newPassword, false)
	})
	if err != nil {
		return s.mapNotFound(err, "change password", username)
	}
	s.record(ctx, actor, "user.change_password", username, nil)
	return nil
}

// SetPassword is the operator reset used by the account commands. force skips
// the password policy.
func (s *Service) SetPassword(ctx context.Context, username, password string, force bool) (User, error) {
	updated, err := s.repo.MutateUser(ctx, username, func(u *User) error {
		return s.replacePassword(u, password, force)
	})
	if err != nil {
		return User{}, s.mapNotFound(err, "set password", username)
	}
	s.record(ctx, "", "user.set_password", username, map[string]any{"forced": force})
	return updated, nil
}

// EnsureAdmin creates the bootstrap administrator if it does not exist yet.
// The password policy is bypassed. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if _, err := s.repo.GetUser(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return false, fmt.Errorf("users: lookup %s: %w", username, err)
	}
	_, err := s.Create(ctx, "", CreateInput{
		Username: username,
		Password: password,
		Roles:    []string{roles.Administrator},
		Enabled:  true,
	}, CreateOptions{ForcePassword: true})
	if errors.Is(err, ErrUsernameTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) replacePassword(u *User, password string, force bool) error {
	if !force {
		if err := s.validatePassword(u.Username, password, u.PasswordHashes()); err != nil {
			return err
		}
	}
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHistory = pushHistory(u.PasswordHistory, u.PasswordHash, s.cfg.HistorySize)
	u.PasswordHash = hash
	return nil
}

func (s *Service) validatePassword(username, password string, hashes []string) error {
	if s.policy == nil {
		return nil
	}
	err := s.policy.Validate(password, passwordpolicy.Context{Username: username, PasswordHashes: hashes})
	if err == nil {
		return nil
	}
	var violation *passwordpolicy.Violation
	if errors.As(err, &violation) {
		if s.observer != nil {
			s.observer.PolicyViolation(string(violation.Rule))
		}
		return ErrPasswordPolicy.WithDetail(violation.Message)
	}
	return err
}

func (s *Service) checkRoles(ctx context.Context, names []string) error {
	for _, name := range names {
		ok, err := s.roles.Exists(ctx, name)
		if err != nil {
			return fmt.Errorf("users: check role %s: %w", name, err)
		}
		if !ok {
			return ErrRoleDoesNotExist.WithDetail(fmt.Sprintf("Role '%s' does not exist", name))
		}
	}
	return nil
}

func (s *Service) mapNotFound(err error, op, username string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return ErrUserNotFound.WithDetail(fmt.Sprintf("User '%s' does not exist", username))
	}
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return fmt.Errorf("users: %s %s: %w", op, username, err)
}

func (s *Service) revoke(ctx context.Context, username string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeUser(ctx, username); err != nil {
		s.logger.Warn("revoke user sessions", slog.String("username", username), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor, action, username string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{Actor: actor, Action: action, Entity: "user", EntityID: username, Meta: meta}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit user change", slog.String("action", action), slog.Any("error", err))
	}
}

// pushHistory prepends previous and keeps at most size entries.
func pushHistory(history []string, previous string, size int) []string {
	if size <= 0 {
		return nil
	}
	if previous == "" {
		return history
	}
	out := make([]string, 0, min(len(history)+1, size))
	out = append(out, previous)
	for _, h := range history {
		if len(out) == size {
			break
		}
		out = append(out, h)
	}
	return out
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (p Patch) fields() []string {
	var out []string
	if p.Name != nil {
		out = append(out, "name")
	}
	if p.Email != nil {
		out = append(out, "email")
	}
	if p.Roles != nil {
		out = append(out, "roles")
	}
	if p.Enabled != nil {
		out = append(out, "enabled")
	}
	if p.Password != nil {
		out = append(out, "password")
	}
	return out
}
