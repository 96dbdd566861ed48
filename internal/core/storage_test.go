package core

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"omegraph/internal/config"
	"omegraph/internal/infra/persistence/memory"
	"omegraph/internal/infra/persistence/postgres"
	"omegraph/internal/infra/persistence/postgres/testutil"
	"omegraph/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), config.StorageConfig{Driver: config.StorageMemory})
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	store, err := OpenPersistentStore(context.Background(), config.StorageConfig{Driver: config.StorageSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok || s.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if closer, ok := store.(io.Closer); !ok {
		t.Fatalf("sqlite store must be closable")
	} else if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenPersistentStorePostgres(t *testing.T) {
	db, _ := testutil.NewStubDB()
	var gotDSN string
	restore := postgres.OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, nil
	})
	defer restore()
	store, err := OpenPersistentStore(context.Background(), config.StorageConfig{Driver: config.StoragePostgres, PostgresDSN: "postgres://graph@db/omegraph"})
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	if _, ok := store.(*postgres.Store); !ok || gotDSN != "postgres://graph@db/omegraph" {
		t.Fatalf("expected postgres store with configured dsn, got %T %q", store, gotDSN)
	}
}

func TestOpenPersistentStoreUnknown(t *testing.T) {
	if _, err := OpenPersistentStore(context.Background(), config.StorageConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
