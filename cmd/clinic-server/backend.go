package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/limamedic/clinic/internal/config"
	"github.com/limamedic/clinic/internal/platform/db"
	"github.com/limamedic/clinic/internal/platform/tabular"
)

// backend is the opened tabular store plus the Postgres pool for health
// stats and a close func.
type backend struct {
	name  string
	store tabular.Store
	pool  *pgxpool.Pool
	close func()
}

// migrate creates the schema when the store needs one.
func (b *backend) migrate(ctx context.Context) error {
	m, ok := b.store.(tabular.Migrator)
	if !ok {
		return nil
	}
	return m.Migrate(ctx)
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{name: cfg.StoreBackend, close: func() {}}

	switch cfg.StoreBackend {
	case config.BackendXLSX:
		s, err := tabular.NewXLSXStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		b.store = s

	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := tabular.NewBoltStore(filepath.Join(cfg.DataDir, "clinic.db"))
		if err != nil {
			return nil, err
		}
		b.store = s
		b.close = func() { _ = s.Close() }

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		s := tabular.NewPGStore(pool)
		b.store = s
		b.pool = pool
		b.close = pool.Close

	case config.BackendMySQL:
		s, err := tabular.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		b.store = s
		b.close = func() { _ = s.Close() }

	case config.BackendMemory:
		b.store = tabular.NewMemoryStore()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return b, nil
}
