package core

import (
	"context"
	"fmt"

	"omegraph/internal/config"
	"omegraph/internal/infra/persistence/memory"
	"omegraph/internal/infra/persistence/postgres"
	"omegraph/internal/infra/persistence/sqlite"
	"omegraph/pkg/domain"
)

// PersistentStore is a remote store that can discard staged writes and be
// probed for liveness.
type PersistentStore interface {
	domain.RemoteStore
	domain.Aborter
	domain.Pinger
}

// Compile-time assertions for every backend selectable by OpenPersistentStore.
var (
	_ PersistentStore = (*memory.Store)(nil)
	_ PersistentStore = (*sqlite.Store)(nil)
	_ PersistentStore = (*postgres.Store)(nil)
)

// OpenPersistentStore selects a backend from cfg. Callers close SQL backends
// through io.Closer.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig) (PersistentStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case "", config.StorageSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case config.StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
