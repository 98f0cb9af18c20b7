package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larrabee/ceph/internal/platform/db"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
)

// RepositoryPort defines data access methods for users. Missing users are
// reported as shared.ErrNotFound.
type RepositoryPort interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, username string) error
	// MutateUser applies fn to the stored user under an exclusive row lock and
	// persists the result. Nothing is written when fn fails.
	MutateUser(ctx context.Context, username string, fn func(*User) error) (User, error)
	CountWithRole(ctx context.Context, role string) (int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const userColumns = `username, password_hash, name, email, roles, enabled, password_history, last_update`

// CreateUser inserts a new user and stamps last_update.
func (r *Repository) CreateUser(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO dashboard_users
(username, password_hash, name, email, roles, enabled, password_history, last_update)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+userColumns,
		user.Username, user.PasswordHash, user.Name, user.Email, nonNil(user.Roles), user.Enabled,
		nonNil(user.PasswordHistory), r.now())
	created, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("users: create %s: %w", user.Username, err)
	}
	return created, nil
}

// GetUser fetches a user by username.
func (r *Repository) GetUser(ctx context.Context, username string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM dashboard_users WHERE username=$1`, username))
}

// ListUsers returns all users in insertion order.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM dashboard_users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	out := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return out, nil
}

// DeleteUser removes a user.
func (r *Repository) DeleteUser(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dashboard_users WHERE username=$1`, username)
	if err != nil {
		return fmt.Errorf("users: delete %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MutateUser locks the row with SELECT ... FOR UPDATE so concurrent
// mutations of one user serialize. When fn changes the roles, the custom
// roles granted are locked FOR KEY SHARE in the same transaction so they
// cannot be deleted before the grant commits.
func (r *Repository) MutateUser(ctx context.Context, username string, fn func(*User) error) (User, error) {
	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM dashboard_users WHERE username=$1 FOR UPDATE`, username))
		if err != nil {
			return err
		}
		before := slices.Clone(user.Roles)
		if err := fn(&user); err != nil {
			return err
		}
		if !slices.Equal(before, user.Roles) {
			if err := lockCustomRoles(ctx, tx, user.Roles); err != nil {
				return err
			}
		}
		updated, err = scanUser(tx.QueryRow(ctx, `UPDATE dashboard_users
SET password_hash=$2, name=$3, email=$4, roles=$5, enabled=$6, password_history=$7, last_update=$8
WHERE username=$1 RETURNING `+userColumns,
			username, user.PasswordHash, user.Name, user.Email, nonNil(user.Roles), user.Enabled,
			nonNil(user.PasswordHistory), r.now()))
		return err
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

func lockCustomRoles(ctx context.Context, tx pgx.Tx, names []string) error {
	custom := make([]string, 0, len(names))
	for _, name := range names {
		if !roles.IsSystem(name) {
			custom = append(custom, name)
		}
	}
	if len(custom) == 0 {
		return nil
	}
	rows, err := tx.Query(ctx, `SELECT name FROM dashboard_roles WHERE name = ANY($1) FOR KEY SHARE`, custom)
	if err != nil {
		return fmt.Errorf("users: lock roles: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("users: lock roles: %w", err)
	}
	for _, name := range custom {
		if !slices.Contains(found, name) {
			return ErrRoleDoesNotExist.WithDetail(fmt.Sprintf("Role '%s' does not exist", name))
		}
	}
	return nil
}

// CountWithRole counts users holding role.
func (r *Repository) CountWithRole(ctx context.Context, role string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM dashboard_users WHERE $1 = ANY(roles)`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count role %s: %w", role, err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.Username, &u.PasswordHash, &u.Name, &u.Email, &u.Roles, &u.Enabled, &u.PasswordHistory, &u.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ RepositoryPort = (*Repository)(nil)
