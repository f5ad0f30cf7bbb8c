package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names a KV implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendBadger   Backend = "badger"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// Config selects and configures the record store.
type Config struct {
	Backend     Backend
	Dir         string
	BadgerPath  string
	DatabaseURL string
	Pool        PoolConfig
}

// Open returns the configured KV. Postgres tables are migrated on open.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileKV(cfg.Dir)
	case BackendBadger:
		return OpenBadger(DefaultBadgerConfig(cfg.BadgerPath))
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("storage: postgres backend requires a database url")
		}
		pool, err := NewPool(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("postgres store ready", "max_conns", cfg.Pool.MaxConns)
		return NewPostgresKV(pool), nil
	case BackendMemory:
		return NewMemoryKV(), nil
	}
	return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
}
