package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/store"
)

// initStore opens the configured store backend. Callers own Close.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "proposal-cli.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		pool := store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
