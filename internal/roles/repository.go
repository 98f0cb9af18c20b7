package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larrabee/ceph/internal/platform/db"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

// RepositoryPort defines data access methods for custom roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, name string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `name, description, scopes, created_at, updated_at`

// ListRoles returns all custom roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM dashboard_roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	return out, nil
}

// GetRole fetches a custom role by name.
func (r *Repository) GetRole(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM dashboard_roles WHERE name=$1`, name)
	return scanRole(row)
}

// CreateRole inserts a new custom role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	scopes, err := json.Marshal(role.Scopes.Permissions())
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode scopes: %w", err)
	}
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `INSERT INTO dashboard_roles (name, description, scopes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4) RETURNING `+roleColumns, role.Name, role.Description, scopes, now)
	created, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrRoleExists
		}
		return Role{}, err
	}
	return created, nil
}

// UpdateRole replaces the description and scopes of a custom role.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	scopes, err := json.Marshal(role.Scopes.Permissions())
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode scopes: %w", err)
	}
	row := r.pool.QueryRow(ctx, `UPDATE dashboard_roles SET description=$2, scopes=$3, updated_at=$4
WHERE name=$1 RETURNING `+roleColumns, role.Name, role.Description, scopes, time.Now().UTC())
	return scanRole(row)
}

// DeleteRole removes a custom role that no user holds. The role row is locked
// before users are counted, which waits out any grant still in flight.
func (r *Repository) DeleteRole(ctx context.Context, name string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT name FROM dashboard_roles WHERE name=$1 FOR UPDATE`, name).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("roles: lock %s: %w", name, err)
		}
		var holders int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM dashboard_users WHERE $1 = ANY(roles)`, name).Scan(&holders); err != nil {
			return fmt.Errorf("roles: count users of %s: %w", name, err)
		}
		if holders > 0 {
			return ErrRoleInUse
		}
		if _, err := tx.Exec(ctx, `DELETE FROM dashboard_roles WHERE name=$1`, name); err != nil {
			return fmt.Errorf("roles: delete %s: %w", name, err)
		}
		return nil
	})
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role Role
		raw  []byte
	)
	if err := row.Scan(&role.Name, &role.Description, &raw, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	var perms map[string][]string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return Role{}, fmt.Errorf("roles: decode scopes of %s: %w", role.Name, err)
	}
	scopes, err := rbac.FromPermissions(perms)
	if err != nil {
		return Role{}, fmt.Errorf("roles: decode scopes of %s: %w", role.Name, err)
	}
	role.Scopes = scopes
	return role, nil
}
