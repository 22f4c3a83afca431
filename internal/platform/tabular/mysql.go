package tabular

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore mirrors PGStore on MySQL/MariaDB through database/sql.
type MySQLStore struct {
	db *sql.DB
}

// OpenMySQL opens and pings a MySQL connection. The DSN should carry
// parseTime=true, e.g. user:pass@tcp(host:3306)/clinic?parseTime=true.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS tabular_rows (
    id         BIGINT AUTO_INCREMENT PRIMARY KEY,
    table_name VARCHAR(64) NOT NULL,
    data       JSON NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_tabular_rows_table (table_name, id)
)`

func (s *MySQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("create tabular_rows: %w", err)
	}
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Read(ctx context.Context, t Table) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM tabular_rows WHERE table_name = ? ORDER BY id`, t.Name)
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

func (s *MySQLStore) AppendRow(ctx context.Context, t Table, row Row) error {
	data, err := json.Marshal(project(t, row))
	if err != nil {
		return persistErr("append", t, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tabular_rows (table_name, data) VALUES (?, ?)`, t.Name, data)
	return persistErr("append", t, err)
}

func (s *MySQLStore) Overwrite(ctx context.Context, t Table, rows []Row) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("overwrite", t, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tabular_rows WHERE table_name = ?`, t.Name); err != nil {
		return persistErr("overwrite", t, err)
	}
	for _, r := range rows {
		data, mErr := json.Marshal(project(t, r))
		if mErr != nil {
			err = mErr
			return persistErr("overwrite", t, err)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO tabular_rows (table_name, data) VALUES (?, ?)`, t.Name, data); err != nil {
			return persistErr("overwrite", t, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return persistErr("overwrite", t, err)
	}
	return nil
}
