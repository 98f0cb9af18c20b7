package roles_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/roles/rolestest"
	"github.com/larrabee/ceph/internal/shared"
)

type stubUsage map[string]int

func (s stubUsage) CountWithRole(_ context.Context, role string) (int, error) {
	if role == "broken" {
		return 0, errors.New("db down")
	}
	return s[role], nil
}

type captureAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (c *captureAudit) Record(_ context.Context, log shared.AuditLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, log)
	return nil
}

func newRegistry(t *testing.T, usage roles.UsageCounter) (*roles.Registry, *captureAudit) {
	t.Helper()
	audit := &captureAudit{}
	return roles.NewRegistry(rolestest.NewMemoryRepository(), usage, audit, nil), audit
}

func TestSystemRoles(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	ctx := context.Background()

	for _, name := range []string{roles.Administrator, roles.ReadOnly, roles.BlockManager, roles.PoolManager} {
		ok, err := reg.Exists(ctx, name)
		require.NoError(t, err)
		require.True(t, ok, name)
	}
	ok, err := reg.Exists(ctx, "invalid-role")
	require.NoError(t, err)
	require.False(t, ok)

	admin, err := reg.Get(ctx, roles.Administrator)
	require.NoError(t, err)
	require.True(t, admin.System)
	for _, r := range rbac.Resources() {
		for _, a := range rbac.Actions() {
			require.True(t, admin.Scopes.Has(rbac.S(r, a)), "%s:%s", r, a)
		}
	}

	readOnly, err := reg.Get(ctx, roles.ReadOnly)
	require.NoError(t, err)
	require.True(t, readOnly.Scopes.Has(rbac.S(rbac.ResourceUser, rbac.ActionRead)))
	require.False(t, readOnly.Scopes.Has(rbac.S(rbac.ResourceUser, rbac.ActionCreate)))
	require.False(t, readOnly.Scopes.Has(rbac.S(rbac.ResourceDashboardSettings, rbac.ActionRead)))

	_, err = reg.Get(ctx, "invalid-role")
	require.ErrorIs(t, err, roles.ErrRoleNotFound)
}

func TestGetReturnsCopyOfSystemRole(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	ctx := context.Background()

	block, err := reg.Get(ctx, roles.BlockManager)
	require.NoError(t, err)
	block.Scopes.Grant(rbac.ResourceUser, rbac.ActionDelete)

	again, err := reg.Get(ctx, roles.BlockManager)
	require.NoError(t, err)
	require.False(t, again.Scopes.Has(rbac.S(rbac.ResourceUser, rbac.ActionDelete)))
}

func TestScopesForUnion(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	ctx := context.Background()

	set, err := reg.ScopesFor(ctx, []string{roles.BlockManager, roles.PoolManager, "ghost"})
	require.NoError(t, err)
	require.True(t, set.Has(rbac.S(rbac.ResourceRBDImage, rbac.ActionDelete)))
	require.True(t, set.Has(rbac.S(rbac.ResourcePool, rbac.ActionCreate)))
	require.True(t, set.Has(rbac.S(rbac.ResourceGrafana, rbac.ActionRead)))
	require.False(t, set.Has(rbac.S(rbac.ResourceUser, rbac.ActionRead)))

	empty, err := reg.ScopesFor(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestCustomRoleLifecycle(t *testing.T) {
	reg, audit := newRegistry(t, stubUsage{})
	ctx := context.Background()

	created, err := reg.Create(ctx, "admin", roles.Input{
		Name:        " user-reader ",
		Description: "reads users",
		Scopes:      rbac.NewScopeSet(rbac.S(rbac.ResourceUser, rbac.ActionRead)),
	})
	require.NoError(t, err)
	require.Equal(t, "user-reader", created.Name)
	require.False(t, created.System)

	_, err = reg.Create(ctx, "admin", roles.Input{Name: "user-reader"})
	require.ErrorIs(t, err, roles.ErrRoleExists)

	set, err := reg.ScopesFor(ctx, []string{"user-reader"})
	require.NoError(t, err)
	require.True(t, set.Has(rbac.S(rbac.ResourceUser, rbac.ActionRead)))

	updated, err := reg.Update(ctx, "admin", "user-reader", roles.Input{
		Description: "manages users",
		Scopes:      rbac.NewScopeSet().Grant(rbac.ResourceUser, rbac.ActionRead, rbac.ActionUpdate),
	})
	require.NoError(t, err)
	require.Equal(t, "manages users", updated.Description)
	require.True(t, updated.Scopes.Has(rbac.S(rbac.ResourceUser, rbac.ActionUpdate)))

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(roles.SystemRoles())+1)
	require.Equal(t, roles.Administrator, list[0].Name)
	require.Equal(t, "user-reader", list[len(list)-1].Name)

	require.NoError(t, reg.Delete(ctx, "admin", "user-reader"))
	_, err = reg.Get(ctx, "user-reader")
	require.ErrorIs(t, err, roles.ErrRoleNotFound)

	require.Len(t, audit.entries, 3)
	require.Equal(t, "role.create", audit.entries[0].Action)
	require.Equal(t, "role.delete", audit.entries[2].Action)
}

func TestSystemRolesAreImmutable(t *testing.T) {
	reg, _ := newRegistry(t, stubUsage{})
	ctx := context.Background()

	_, err := reg.Create(ctx, "admin", roles.Input{Name: roles.Administrator})
	require.ErrorIs(t, err, roles.ErrRoleExists)
	_, err = reg.Update(ctx, "admin", roles.ReadOnly, roles.Input{})
	require.ErrorIs(t, err, roles.ErrSystemRole)
	require.ErrorIs(t, reg.Delete(ctx, "admin", roles.BlockManager), roles.ErrSystemRole)
}

func TestDeleteChecks(t *testing.T) {
	reg, _ := newRegistry(t, stubUsage{"in-use": 2})
	ctx := context.Background()

	require.ErrorIs(t, reg.Delete(ctx, "admin", "ghost"), roles.ErrRoleNotFound)

	_, err := reg.Create(ctx, "admin", roles.Input{Name: "in-use"})
	require.NoError(t, err)
	require.ErrorIs(t, reg.Delete(ctx, "admin", "in-use"), roles.ErrRoleInUse)

	_, err = reg.Create(ctx, "admin", roles.Input{Name: "broken"})
	require.NoError(t, err)
	err = reg.Delete(ctx, "admin", "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, roles.ErrRoleInUse)
}

func TestUpdateUnknownRole(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	_, err := reg.Update(context.Background(), "admin", "ghost", roles.Input{})
	require.ErrorIs(t, err, roles.ErrRoleNotFound)
}

func TestCreateRequiresName(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	_, err := reg.Create(context.Background(), "admin", roles.Input{Name: "  "})
	var domainErr *shared.Error
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, shared.KindInvalid, domainErr.Kind)
}
