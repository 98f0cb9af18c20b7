package roles_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/larrabee/ceph/internal/platform/db"
	"github.com/larrabee/ceph/internal/platform/db/dbtest"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
)

func TestRepositoryPersistsCustomRoles(t *testing.T) {
	dsn := dbtest.StartPostgres(t)
	ctx := context.Background()

	pool, err := db.New(ctx, dsn, db.Options{})
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, db.Migrate(ctx, pool))
	require.NoError(t, db.Migrate(ctx, pool))

	audit := shared.NewAuditLogger(pool)
	registry := roles.NewRegistry(roles.NewRepository(pool), nil, audit, nil)

	_, err = registry.Create(ctx, "admin", roles.Input{
		Name:        "auditor",
		Description: "Reads users and logs",
		Scopes:      rbac.NewScopeSet().Grant(rbac.ResourceUser, rbac.ActionRead).Grant(rbac.ResourceLog, rbac.ActionRead),
	})
	require.NoError(t, err)

	_, err = registry.Create(ctx, "admin", roles.Input{Name: "auditor", Scopes: rbac.NewScopeSet()})
	require.ErrorIs(t, err, roles.ErrRoleExists)

	reopened := roles.NewRegistry(roles.NewRepository(pool), nil, nil, nil)
	got, err := reopened.Get(ctx, "auditor")
	require.NoError(t, err)
	require.True(t, got.Scopes.Has(rbac.S(rbac.ResourceLog, rbac.ActionRead)))
	require.False(t, got.Scopes.Has(rbac.S(rbac.ResourceUser, rbac.ActionDelete)))

	var entries int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs WHERE entity = 'role' AND entity_id = 'auditor'`).Scan(&entries))
	require.Equal(t, 1, entries)

	require.NoError(t, reopened.Delete(ctx, "admin", "auditor"))
	_, err = reopened.Get(ctx, "auditor")
	require.ErrorIs(t, err, roles.ErrRoleNotFound)
}
