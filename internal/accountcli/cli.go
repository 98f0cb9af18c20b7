// Package accountcli implements the ac-* account administration commands.
// Commands act as the system operator, without a session identity.
package accountcli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// UserAdmin is the account service used by the commands.
type UserAdmin interface {
	Get(ctx context.Context, username string) (users.User, error)
	List(ctx context.Context) ([]users.User, error)
	Create(ctx context.Context, actor string, in users.CreateInput, opts users.CreateOptions) (users.User, error)
	Update(ctx context.Context, actor, username string, patch users.Patch) (users.User, error)
	Delete(ctx context.Context, actor, username string) error
	SetPassword(ctx context.Context, username, password string, force bool) (users.User, error)
}

// RoleReader lists roles.
type RoleReader interface {
	Get(ctx context.Context, name string) (roles.Role, error)
	List(ctx context.Context) ([]roles.Role, error)
}

type command struct {
	usage string
	run   func(c *CLI, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"ac-user-create": {
		usage: "[--force-password] [--disabled] <username> <password> [role] [name] [email]",
		run:   (*CLI).userCreate,
	},
	"ac-user-set-password": {
		usage: "[--force-password] <username> <password>",
		run:   (*CLI).userSetPassword,
	},
	"ac-user-show":      {usage: "[username]", run: (*CLI).userShow},
	"ac-user-delete":    {usage: "<username>", run: (*CLI).userDelete},
	"ac-user-enable":    {usage: "<username>", run: (*CLI).userEnable},
	"ac-user-disable":   {usage: "<username>", run: (*CLI).userDisable},
	"ac-user-set-roles": {usage: "<username> <role>...", run: (*CLI).userSetRoles},
	"ac-role-show":      {usage: "[name]", run: (*CLI).roleShow},
}

// IsCommand reports whether name is an account command.
func IsCommand(name string) bool {
	_, ok := commands[name]
	return ok
}

// Usage prints every command with its arguments.
func Usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: dashboard serve")
	for _, name := range names {
		fmt.Fprintf(w, "       dashboard %s %s\n", name, commands[name].usage)
	}
}

// CLI dispatches account commands.
type CLI struct {
	users  UserAdmin
	roles  RoleReader
	stdout io.Writer
	stderr io.Writer
}

// New builds a CLI writing results to stdout and diagnostics to stderr.
func New(userAdmin UserAdmin, roleReader RoleReader, stdout, stderr io.Writer) *CLI {
	return &CLI{users: userAdmin, roles: roleReader, stdout: stdout, stderr: stderr}
}

// errReported marks flag errors the flag package has already printed.
var errReported = errors.New("usage reported")

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// Run executes args[0] with the remaining arguments and returns the exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		Usage(c.stderr)
		return ExitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(c.stderr, "unknown command %q\n", args[0])
		Usage(c.stderr)
		return ExitUsage
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "usage: dashboard %s %s\n", args[0], cmd.usage)
		fs.PrintDefaults()
	}

	err := cmd.run(c, ctx, fs, args[1:])
	var usageErr usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errReported):
		return ExitUsage
	case errors.As(err, &usageErr):
		fmt.Fprintln(c.stderr, usageErr.msg)
		fs.Usage()
		return ExitUsage
	default:
		c.printError(err)
		return ExitError
	}
}

func (c *CLI) printError(err error) {
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		if domainErr.Detail != "" {
			fmt.Fprintf(c.stderr, "Error: %s: %s\n", domainErr.Code, domainErr.Detail)
			return
		}
		fmt.Fprintf(c.stderr, "Error: %s\n", domainErr.Code)
		return
	}
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
}

func (c *CLI) print(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parse parses flags and checks the positional argument count.
func parse(fs *flag.FlagSet, args []string, min, max int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errReported
	}
	rest := fs.Args()
	if len(rest) < min || (max >= 0 && len(rest) > max) {
		return nil, usagef("wrong number of arguments")
	}
	return rest, nil
}
