package tabular

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps every table as JSONB rows in a single tabular_rows relation,
// ordered by a bigserial so reads return insertion order.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS tabular_rows (
    id         BIGSERIAL PRIMARY KEY,
    table_name VARCHAR(64) NOT NULL,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tabular_rows_table ON tabular_rows (table_name, id);`

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("create tabular_rows: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Read(ctx context.Context, t Table) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM tabular_rows WHERE table_name = $1 ORDER BY id`, t.Name)
	if err != nil {
		return nil, persistErr("read", t, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistErr("read", t, err)
		}
		var r Row
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, persistErr("read", t, fmt.Errorf("decode row: %w", err))
		}
		out = append(out, r)
	}
	return out, persistErr("read", t, rows.Err())
}

func (s *PGStore) AppendRow(ctx context.Context, t Table, row Row) error {
	data, err := json.Marshal(project(t, row))
	if err != nil {
		return persistErr("append", t, err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO tabular_rows (table_name, data) VALUES ($1, $2)`, t.Name, data)
	return persistErr("append", t, err)
}

func (s *PGStore) Overwrite(ctx context.Context, t Table, rows []Row) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tabular_rows WHERE table_name = $1`, t.Name); err != nil {
			return err
		}
		for _, r := range rows {
			data, err := json.Marshal(project(t, r))
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO tabular_rows (table_name, data) VALUES ($1, $2)`, t.Name, data); err != nil {
				return err
			}
		}
		return nil
	})
	return persistErr("overwrite", t, err)
}
