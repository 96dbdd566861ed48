// Package sqlstore implements the remote store contract on top of
// database/sql. One SQL transaction spans a whole import: it is opened by the
// first batch and closed by Commit or Abort.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"omegraph/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.RemoteStore = (*Store)(nil)
	_ domain.Aborter     = (*Store)(nil)
	_ domain.Pinger      = (*Store)(nil)
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Schema is applied once when the store opens.
	Schema []string
}

// QuestionPlaceholder renders "?" parameters.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" parameters.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// Store is a database/sql backed remote store.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu       sync.Mutex
	tx       *sql.Tx
	importID string
	lastID   string
}

// New applies the dialect schema and returns a store over db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	if dialect.Placeholder == nil {
		dialect.Placeholder = QuestionPlaceholder
	}
	for _, stmt := range dialect.Schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply %s schema: %w", dialect.Name, err)
		}
	}
	return &Store{db: db, dialect: dialect}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// LastImportID returns the import identifier of the most recent commit.
func (s *Store) LastImportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

func (s *Store) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.dialect.Placeholder(i + 1)
	}
	return strings.Join(parts, ",")
}

// begin opens the import transaction if needed. Callers hold s.mu.
func (s *Store) begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.tx = tx
	s.importID = uuid.NewString()
	return nil
}

// UpdateObjects inserts one object batch inside the import transaction.
func (s *Store) UpdateObjects(ctx context.Context, batch []domain.ObjectRecord) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx); err != nil {
		return err
	}
	query := `INSERT INTO objects (import_id, object_key, tag, indices, symbol, fields) VALUES (` + s.placeholders(6) + `)`
	for _, rec := range batch {
		indices, err := json.Marshal(rec.Indices)
		if err != nil {
			return fmt.Errorf("encode indices of %s: %w", rec.Key, err)
		}
		fields := rec.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode fields of %s: %w", rec.Key, err)
		}
		if _, err := s.tx.ExecContext(ctx, query, s.importID, rec.Key, string(rec.Tag), string(indices), string(rec.Symbol), string(payload)); err != nil {
			return fmt.Errorf("insert object %s: %w", rec.Key, err)
		}
	}
	return nil
}

// UpdateReferences inserts one row per resolved target, keeping target order.
func (s *Store) UpdateReferences(ctx context.Context, batch []domain.ReferenceSet) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx); err != nil {
		return err
	}
	query := `INSERT INTO object_references (import_id, source, position, target) VALUES (` + s.placeholders(4) + `)`
	for _, set := range batch {
		for pos, target := range set.Targets {
			if _, err := s.tx.ExecContext(ctx, query, s.importID, set.Source, int64(pos), target); err != nil {
				return fmt.Errorf("insert reference %s -> %s: %w", set.Source, target, err)
			}
		}
	}
	return nil
}

// Commit reads back the handles of commit tags and commits the transaction.
func (s *Store) Commit(ctx context.Context) ([]domain.PersistedHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	handles, err := s.handles(ctx)
	if err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return nil, err
	}
	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.tx = nil
	s.lastID = s.importID
	return handles, nil
}

func (s *Store) handles(ctx context.Context) ([]domain.PersistedHandle, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT id, object_key, tag FROM objects WHERE import_id = `+s.dialect.Placeholder(1), s.importID)
	if err != nil {
		return nil, fmt.Errorf("select handles: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.PersistedHandle
	for rows.Next() {
		var h domain.PersistedHandle
		var tag string
		if err := rows.Scan(&h.ID, &h.Key, &tag); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		h.Tag = domain.Tag(tag)
		if domain.IsCommitTag(h.Tag) {
			out = append(out, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handles: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Abort rolls back the open import transaction, if any.
func (s *Store) Abort(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Ping implements domain.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close rolls back any open transaction and closes the database.
func (s *Store) Close() error {
	_ = s.Abort(context.Background())
	return s.db.Close()
}

// Object is a committed row read back by LoadObjects.
type Object struct {
	ID     int64
	Record domain.ObjectRecord
}

// LoadObjects returns the committed objects of an import ordered by id.
func (s *Store) LoadObjects(ctx context.Context, importID string) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, object_key, tag, indices, symbol, fields FROM objects WHERE import_id = `+s.dialect.Placeholder(1), importID)
	if err != nil {
		return nil, fmt.Errorf("select objects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Object
	for rows.Next() {
		var (
			obj                         Object
			tag, indices, symbol, field string
		)
		if err := rows.Scan(&obj.ID, &obj.Record.Key, &tag, &indices, &symbol, &field); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		obj.Record.Tag = domain.Tag(tag)
		obj.Record.Symbol = domain.Symbol(symbol)
		if err := json.Unmarshal([]byte(indices), &obj.Record.Indices); err != nil {
			return nil, fmt.Errorf("decode indices of %s: %w", obj.Record.Key, err)
		}
		if err := json.Unmarshal([]byte(field), &obj.Record.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", obj.Record.Key, err)
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadReferences returns the committed targets of every source of an import.
func (s *Store) LoadReferences(ctx context.Context, importID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, position, target FROM object_references WHERE import_id = `+s.dialect.Placeholder(1), importID)
	if err != nil {
		return nil, fmt.Errorf("select references: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type row struct {
		pos    int64
		target string
	}
	bySource := make(map[string][]row)
	for rows.Next() {
		var source string
		var r row
		if err := rows.Scan(&source, &r.pos, &r.target); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		bySource[source] = append(bySource[source], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	out := make(map[string][]string, len(bySource))
	for source, rs := range bySource {
		sort.Slice(rs, func(i, j int) bool { return rs[i].pos < rs[j].pos })
		targets := make([]string, len(rs))
		for i, r := range rs {
			targets[i] = r.target
		}
		out[source] = targets
	}
	return out, nil
}
