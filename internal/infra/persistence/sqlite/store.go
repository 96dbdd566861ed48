// Package sqlite provides an embedded remote store backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"omegraph/internal/infra/persistence/sqlstore"
	"omegraph/pkg/domain"
)

var _ domain.RemoteStore = (*Store)(nil)

// Dialect is the SQLite flavour of the SQL store schema.
var Dialect = sqlstore.Dialect{
	Name:        "sqlite",
	Placeholder: sqlstore.QuestionPlaceholder,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS objects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			import_id TEXT NOT NULL,
			object_key TEXT NOT NULL,
			tag TEXT NOT NULL,
			indices TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			fields TEXT NOT NULL,
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

// Store persists import graphs to a SQLite file.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the SQLite file at path. An empty path
// uses omegraph.db in the working directory.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "omegraph.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.Clean(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	inner, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
