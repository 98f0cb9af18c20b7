package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

// UsageCounter reports how many users hold a role.
type UsageCounter interface {
	CountWithRole(ctx context.Context, role string) (int, error)
}

// Registry resolves built-in and custom roles.
type Registry struct {
	repo   RepositoryPort
	usage  UsageCounter
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewRegistry builds a Registry. usage and audit may be nil.
func NewRegistry(repo RepositoryPort, usage UsageCounter, audit shared.AuditRecorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{repo: repo, usage: usage, audit: audit, logger: logger}
}

// Exists reports whether name is a system or custom role.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.Get(ctx, name)
	if errors.Is(err, ErrRoleNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get returns a role by name.
func (r *Registry) Get(ctx context.Context, name string) (Role, error) {
	if role, ok := systemRoles[name]; ok {
		return role.clone(), nil
	}
	role, err := r.repo.GetRole(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("roles: get %s: %w", name, err)
	}
	return role, nil
}

// List returns system roles followed by custom roles.
func (r *Registry) List(ctx context.Context) ([]Role, error) {
	custom, err := r.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	out := SystemRoles()
	return append(out, custom...), nil
}

// ScopesFor returns the union of the scopes granted by names. Unknown roles
// grant nothing.
func (r *Registry) ScopesFor(ctx context.Context, names []string) (rbac.ScopeSet, error) {
	out := make(rbac.ScopeSet)
	for _, name := range names {
		role, err := r.Get(ctx, name)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				continue
			}
			return nil, err
		}
		out.Merge(role.Scopes)
	}
	return out, nil
}

// Create stores a new custom role.
func (r *Registry) Create(ctx context.Context, actor string, in Input) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Role{}, ErrRoleNameNeeded
	}
	if IsSystem(in.Name) {
		return Role{}, ErrRoleExists
	}
	role, err := r.repo.CreateRole(ctx, Role{Name: in.Name, Description: in.Description, Scopes: nonNil(in.Scopes)})
	if err != nil {
		if errors.Is(err, ErrRoleExists) {
			return Role{}, err
		}
		return Role{}, fmt.Errorf("roles: create %s: %w", in.Name, err)
	}
	r.record(ctx, actor, "role.create", role.Name)
	return role, nil
}

// Update replaces the description and scopes of a custom role.
func (r *Registry) Update(ctx context.Context, actor, name string, in Input) (Role, error) {
	if IsSystem(name) {
		return Role{}, ErrSystemRole
	}
	role, err := r.repo.UpdateRole(ctx, Role{Name: name, Description: in.Description, Scopes: nonNil(in.Scopes)})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("roles: update %s: %w", name, err)
	}
	r.record(ctx, actor, "role.update", name)
	return role, nil
}

// Delete removes a custom role that no user holds.
func (r *Registry) Delete(ctx context.Context, actor, name string) error {
	if IsSystem(name) {
		return ErrSystemRole
	}
	if _, err := r.Get(ctx, name); err != nil {
		return err
	}
	if r.usage != nil {
		n, err := r.usage.CountWithRole(ctx, name)
		if err != nil {
			return fmt.Errorf("roles: count users of %s: %w", name, err)
		}
		if n > 0 {
			return ErrRoleInUse
		}
	}
	if err := r.repo.DeleteRole(ctx, name); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrRoleNotFound
		}
		if errors.Is(err, ErrRoleInUse) {
			return err
		}
		return fmt.Errorf("roles: delete %s: %w", name, err)
	}
	r.record(ctx, actor, "role.delete", name)
	return nil
}

func (r *Registry) record(ctx context.Context, actor, action, name string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "role", EntityID: name}); err != nil {
		r.logger.Warn("audit role change", slog.String("action", action), slog.Any("error", err))
	}
}

func nonNil(s rbac.ScopeSet) rbac.ScopeSet {
	if s == nil {
		return make(rbac.ScopeSet)
	}
	return s
}
