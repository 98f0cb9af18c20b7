// Package rolestest provides an in-memory roles.RepositoryPort for tests.
package rolestest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
)

// MemoryRepository keeps custom roles in a map.
type MemoryRepository struct {
	mu    sync.Mutex
	roles map[string]roles.Role
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{roles: make(map[string]roles.Role)}
}

func copyRole(r roles.Role) roles.Role {
	scopes := make(rbac.ScopeSet, len(r.Scopes))
	scopes.Merge(r.Scopes)
	r.Scopes = scopes
	return r
}

func (m *MemoryRepository) ListRoles(_ context.Context) ([]roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.roles))
	for name := range m.roles {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]roles.Role, 0, len(names))
	for _, name := range names {
		out = append(out, copyRole(m.roles[name]))
	}
	return out, nil
}

func (m *MemoryRepository) GetRole(_ context.Context, name string) (roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[name]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return copyRole(role), nil
}

func (m *MemoryRepository) CreateRole(_ context.Context, role roles.Role) (roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.Name]; ok {
		return roles.Role{}, roles.ErrRoleExists
	}
	now := time.Now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	m.roles[role.Name] = copyRole(role)
	return copyRole(role), nil
}

func (m *MemoryRepository) UpdateRole(_ context.Context, role roles.Role) (roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.roles[role.Name]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	existing.Description = role.Description
	existing.Scopes = role.Scopes
	existing.UpdatedAt = time.Now().UTC()
	m.roles[role.Name] = copyRole(existing)
	return copyRole(existing), nil
}

func (m *MemoryRepository) DeleteRole(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[name]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, name)
	return nil
}

var _ roles.RepositoryPort = (*MemoryRepository)(nil)
