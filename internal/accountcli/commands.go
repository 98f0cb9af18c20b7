package accountcli

import (
	"context"
	"flag"
	"fmt"

	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/users"
)

type roleOutput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Scopes      map[string][]string `json:"scopes_permissions"`
	System      bool                `json:"system"`
}

func (c *CLI) userCreate(ctx context.Context, fs *flag.FlagSet, args []string) error {
	force := fs.Bool("force-password", false, "skip the password policy")
	disabled := fs.Bool("disabled", false, "create the account disabled")
	rest, err := parse(fs, args, 2, 5)
	if err != nil {
		return err
	}

	in := users.CreateInput{Username: rest[0], Password: rest[1], Enabled: !*disabled, Roles: []string{}}
	if len(rest) > 2 && rest[2] != "" {
		in.Roles = []string{rest[2]}
	}
	if len(rest) > 3 && rest[3] != "" {
		in.Name = &rest[3]
	}
	if len(rest) > 4 && rest[4] != "" {
		in.Email = &rest[4]
	}

	user, err := c.users.Create(ctx, "", in, users.CreateOptions{ForcePassword: *force})
	if err != nil {
		return err
	}
	return c.print(users.ToResponse(user))
}

func (c *CLI) userSetPassword(ctx context.Context, fs *flag.FlagSet, args []string) error {
	force := fs.Bool("force-password", false, "skip the password policy")
	rest, err := parse(fs, args, 2, 2)
	if err != nil {
		return err
	}
	user, err := c.users.SetPassword(ctx, rest[0], rest[1], *force)
	if err != nil {
		return err
	}
	return c.print(users.ToResponse(user))
}

func (c *CLI) userShow(ctx context.Context, fs *flag.FlagSet, args []string) error {
	rest, err := parse(fs, args, 0, 1)
	if err != nil {
		return err
	}
	if len(rest) == 1 {
		user, err := c.users.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		return c.print(users.ToResponse(user))
	}
	list, err := c.users.List(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(list))
	for _, u := range list {
		names = append(names, u.Username)
	}
	return c.print(names)
}

func (c *CLI) userDelete(ctx context.Context, fs *flag.FlagSet, args []string) error {
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}
	if err := c.users.Delete(ctx, "", rest[0]); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "User '%s' deleted\n", rest[0])
	return err
}

func (c *CLI) userEnable(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return c.setEnabled(ctx, fs, args, true)
}

func (c *CLI) userDisable(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return c.setEnabled(ctx, fs, args, false)
}

func (c *CLI) setEnabled(ctx context.Context, fs *flag.FlagSet, args []string, enabled bool) error {
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}
	user, err := c.users.Update(ctx, "", rest[0], users.Patch{Enabled: &enabled})
	if err != nil {
		return err
	}
	return c.print(users.ToResponse(user))
}

func (c *CLI) userSetRoles(ctx context.Context, fs *flag.FlagSet, args []string) error {
	rest, err := parse(fs, args, 2, -1)
	if err != nil {
		return err
	}
	names := append([]string(nil), rest[1:]...)
	user, err := c.users.Update(ctx, "", rest[0], users.Patch{Roles: &names})
	if err != nil {
		return err
	}
	return c.print(users.ToResponse(user))
}

func (c *CLI) roleShow(ctx context.Context, fs *flag.FlagSet, args []string) error {
	rest, err := parse(fs, args, 0, 1)
	if err != nil {
		return err
	}
	if len(rest) == 1 {
		role, err := c.roles.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		return c.print(toRoleOutput(role))
	}
	all, err := c.roles.List(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(all))
	for _, role := range all {
		names = append(names, role.Name)
	}
	return c.print(names)
}

func toRoleOutput(role roles.Role) roleOutput {
	return roleOutput{
		Name:        role.Name,
		Description: role.Description,
		Scopes:      role.Scopes.Permissions(),
		System:      role.System,
	}
}
