// Package postgres provides a Postgres-backed remote store. Objects and
// references of one import are written in a single transaction through pgx's
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"omegraph/internal/infra/persistence/sqlstore"
	"omegraph/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RemoteStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/omegraph?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the Postgres flavour of the SQL store schema.
var Dialect = sqlstore.Dialect{
	Name:        "postgres",
	Placeholder: sqlstore.DollarPlaceholder,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS objects (
			id BIGSERIAL PRIMARY KEY,
			import_id TEXT NOT NULL,
			object_key TEXT NOT NULL,
			tag TEXT NOT NULL,
			indices JSONB NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			fields JSONB NOT NULL,
			UNIQUE (import_id, object_key)
		)`,
		`CREATE TABLE IF NOT EXISTS object_references (
			import_id TEXT NOT NULL,
			source TEXT NOT NULL,
			position INTEGER NOT NULL,
			target TEXT NOT NULL,
			PRIMARY KEY (import_id, source, position)
		)`,
		`CREATE INDEX IF NOT EXISTS objects_tag_idx ON objects (import_id, tag)`,
	},
}

// Store persists import graphs to Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres store using dsn (falls back to defaultDSN), checks
// connectivity and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
