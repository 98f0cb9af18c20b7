package accountcli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/larrabee/ceph/internal/accountcli"
	"github.com/larrabee/ceph/internal/passwordpolicy"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/roles/rolestest"
	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
	"github.com/larrabee/ceph/internal/users/userstest"
)

type runner struct {
	t      *testing.T
	svc    *users.Service
	cli    *accountcli.CLI
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newRunner(t *testing.T) *runner {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := userstest.NewMemoryRepository()
	registry := roles.NewRegistry(rolestest.NewMemoryRepository(), repo, nil, nil)
	svc := users.NewService(users.Deps{
		Repo:     repo,
		Roles:    registry,
		Policy:   passwordpolicy.NewEngine(passwordpolicy.DefaultConfig(), users.CheckPassword),
		Sessions: shared.NewSessionManager(client, "secret", time.Hour),
	}, users.ServiceConfig{HistorySize: 5, BcryptCost: bcrypt.MinCost})

	r := &runner{t: t, svc: svc, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	r.cli = accountcli.New(svc, registry, r.stdout, r.stderr)
	return r
}

func (r *runner) run(args ...string) int {
	r.t.Helper()
	r.stdout.Reset()
	r.stderr.Reset()
	return r.cli.Run(context.Background(), args)
}

func (r *runner) user() users.Response {
	r.t.Helper()
	var out users.Response
	require.NoError(r.t, json.Unmarshal(r.stdout.Bytes(), &out), r.stdout.String())
	return out
}

func TestUserCreate(t *testing.T) {
	r := newRunner(t)

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-create", "test1", "newpassword01#", "administrator", "Test User", "t@example.com"))
	created := r.user()
	require.Equal(t, "test1", created.Username)
	require.Equal(t, []string{"administrator"}, created.Roles)
	require.Equal(t, "Test User", *created.Name)
	require.Equal(t, "t@example.com", *created.Email)
	require.True(t, created.Enabled)

	user, err := r.svc.Get(context.Background(), "test1")
	require.NoError(t, err)
	require.True(t, users.CheckPassword(user.PasswordHash, "newpassword01#"))
}

func TestUserCreatePolicy(t *testing.T) {
	r := newRunner(t)

	require.Equal(t, accountcli.ExitError, r.run("ac-user-create", "test2", "foo"))
	require.Contains(t, r.stderr.String(), "password_policy_validation_failed: Password is too short.")
	require.Empty(t, r.stdout.String())

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-create", "--force-password", "--disabled", "test2", "foo"))
	created := r.user()
	require.False(t, created.Enabled)
	require.Nil(t, created.Name)
	require.Empty(t, created.Roles)
}

func TestUserCreateForceDoesNotSkipOtherChecks(t *testing.T) {
	r := newRunner(t)
	require.Equal(t, accountcli.ExitOK, r.run("ac-user-create", "--force-password", "test3", "foo"))

	require.Equal(t, accountcli.ExitError, r.run("ac-user-create", "--force-password", "test3", "foo"))
	require.Contains(t, r.stderr.String(), "username_already_exists")

	require.Equal(t, accountcli.ExitError, r.run("ac-user-create", "--force-password", "test4", "foo", "no-such-role"))
	require.Contains(t, r.stderr.String(), "role_does_not_exist")
}

func TestUserSetPassword(t *testing.T) {
	r := newRunner(t)
	require.Equal(t, accountcli.ExitOK, r.run("ac-user-create", "test1", "mypassword10#"))

	require.Equal(t, accountcli.ExitError, r.run("ac-user-set-password", "test1", "mypassword10#"))
	require.Contains(t, r.stderr.String(), "Password cannot be the same as the previous one.")

	require.Equal(t, accountcli.ExitError, r.run("ac-user-set-password", "test1", "bar"))
	require.Equal(t, accountcli.ExitOK, r.run("ac-user-set-password", "--force-password", "test1", "bar"))
	require.Equal(t, "test1", r.user().Username)

	user, err := r.svc.Get(context.Background(), "test1")
	require.NoError(t, err)
	require.True(t, users.CheckPassword(user.PasswordHash, "bar"))

	require.Equal(t, accountcli.ExitError, r.run("ac-user-set-password", "ghost", "newpassword01#"))
	require.Contains(t, r.stderr.String(), "user_does_not_exist")
}

func TestUserShowEnableDisableDelete(t *testing.T) {
	r := newRunner(t)
	require.Equal(t, accountcli.ExitOK, r.run("ac-user-create", "alpha", "mypassword10#", "read-only"))
	require.Equal(t, accountcli.ExitOK, r.run("ac-user-create", "bravo", "mypassword10#"))

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-show"))
	var names []string
	require.NoError(t, json.Unmarshal(r.stdout.Bytes(), &names))
	require.Equal(t, []string{"alpha", "bravo"}, names)

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-disable", "alpha"))
	require.False(t, r.user().Enabled)
	require.Equal(t, accountcli.ExitOK, r.run("ac-user-enable", "alpha"))
	require.True(t, r.user().Enabled)

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-set-roles", "alpha", "pool-manager", "rgw-manager"))
	require.Equal(t, []string{"pool-manager", "rgw-manager"}, r.user().Roles)
	require.Equal(t, accountcli.ExitError, r.run("ac-user-set-roles", "alpha", "bogus"))
	require.Contains(t, r.stderr.String(), "role_does_not_exist")

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-show", "alpha"))
	require.Equal(t, []string{"pool-manager", "rgw-manager"}, r.user().Roles)

	require.Equal(t, accountcli.ExitOK, r.run("ac-user-delete", "alpha"))
	require.Equal(t, "User 'alpha' deleted\n", r.stdout.String())
	require.Equal(t, accountcli.ExitError, r.run("ac-user-show", "alpha"))
	require.Contains(t, r.stderr.String(), "user_does_not_exist")
}

func TestRoleShow(t *testing.T) {
	r := newRunner(t)

	require.Equal(t, accountcli.ExitOK, r.run("ac-role-show"))
	var names []string
	require.NoError(t, json.Unmarshal(r.stdout.Bytes(), &names))
	require.Equal(t, "administrator", names[0])
	require.Contains(t, names, "block-manager")

	require.Equal(t, accountcli.ExitOK, r.run("ac-role-show", "pool-manager"))
	var role struct {
		Name   string              `json:"name"`
		Scopes map[string][]string `json:"scopes_permissions"`
		System bool                `json:"system"`
	}
	require.NoError(t, json.Unmarshal(r.stdout.Bytes(), &role))
	require.Equal(t, "pool-manager", role.Name)
	require.True(t, role.System)
	require.Equal(t, []string{"read", "create", "update", "delete"}, role.Scopes["pool"])

	require.Equal(t, accountcli.ExitError, r.run("ac-role-show", "nope"))
	require.Contains(t, r.stderr.String(), "role_does_not_exist")
}

func TestUsageErrors(t *testing.T) {
	r := newRunner(t)

	require.Equal(t, accountcli.ExitUsage, r.run())
	require.Equal(t, accountcli.ExitUsage, r.run("ac-nope"))
	require.Equal(t, accountcli.ExitUsage, r.run("ac-user-create", "onlyname"))
	require.Contains(t, r.stderr.String(), "wrong number of arguments")
	require.Equal(t, accountcli.ExitUsage, r.run("ac-user-delete", "a", "b"))
	require.Equal(t, accountcli.ExitUsage, r.run("ac-user-set-password", "--bogus", "a", "b"))
	require.Equal(t, accountcli.ExitUsage, r.run("ac-user-show", "-h"))

	require.True(t, accountcli.IsCommand("ac-user-create"))
	require.False(t, accountcli.IsCommand("serve"))
}

func TestUsageListsCommands(t *testing.T) {
	var out bytes.Buffer
	accountcli.Usage(&out)
	require.Contains(t, out.String(), "dashboard ac-user-create [--force-password] [--disabled] <username> <password> [role] [name] [email]")
	require.Contains(t, out.String(), "dashboard ac-role-show [name]")
}
