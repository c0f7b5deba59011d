package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/registry-cli/internal/registry"
)

func initStore(ctx context.Context) (registry.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "registry.db"
		}
		return registry.NewSQLite(path)
	case "postgres":
		return registry.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
