package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads audit_logs from PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const timelineQuery = `SELECT occurred_at, actor, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC`

// Window returns limit entries starting at offset.
func (r *PostgresRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	args := append(filterArgs(filters), offset, limit)
	return r.query(ctx, timelineQuery+` OFFSET $6 LIMIT $7`, args...)
}

// All returns every matching entry.
func (r *PostgresRepository) All(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	return r.query(ctx, timelineQuery, filterArgs(filters)...)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e    Entry
			meta []byte
		)
		if err := row.Scan(&e.At, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &meta); err != nil {
			return Entry{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return Entry{}, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		return e, nil
	})
}

func filterArgs(f TimelineFilters) []any {
	return []any{toPgTime(f.From), toPgTime(f.To), optionalText(f.Actor), optionalText(f.Entity), optionalText(f.Action)}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

var _ Repository = (*PostgresRepository)(nil)
