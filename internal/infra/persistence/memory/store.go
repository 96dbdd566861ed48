// Package memory provides an in-memory remote store used for tests and
// ephemeral imports. Batches are staged until Commit and discarded by Abort.
// Every Commit is a separate import with its own identifier and fresh object
// IDs, so importing the same keys twice keeps both copies.
package memory

import (
	"context"
	"fmt"
	"sort"
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

// Operations recorded in the call log and accepted by InjectFault.
const (
	OpObjects    = "objects"
	OpReferences = "references"
	OpCommit     = "commit"
	OpAbort      = "abort"
	OpPing       = "ping"
)

// Call is one recorded store invocation.
type Call struct {
	Op   string
	Size int
	Keys []string
}

// CommittedObject is an object record with its assigned handle.
type CommittedObject struct {
	domain.ObjectRecord
	ImportID string `json:"import_id"`
	ID       int64  `json:"id"`
}

// CommittedImport is the state written by one Commit.
type CommittedImport struct {
	ID         string              `json:"id"`
	Objects    []CommittedObject   `json:"objects"`
	References map[string][]string `json:"references"`
}

// Snapshot is the committed state of the store, oldest import first.
type Snapshot struct {
	Imports []CommittedImport `json:"imports"`
	NextID  int64             `json:"next_id"`
}

type committedImport struct {
	id      string
	objects map[string]CommittedObject
	refs    map[string][]string
}

type fault struct {
	call int
	err  error
}

// Store stages batches in memory and applies them atomically on Commit.
type Store struct {
	mu sync.Mutex

	stagedObjects []domain.ObjectRecord
	stagedRefs    []domain.ReferenceSet

	imports []*committedImport
	byID    map[string]*committedImport
	nextID  int64

	calls  []Call
	counts map[string]int
	faults map[string]fault
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[string]*committedImport),
		counts:  make(map[string]int),
		faults:  make(map[string]fault),
	}
}

// InjectFault makes the call-th invocation (zero based) of op fail with err.
func (s *Store) InjectFault(op string, call int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = fault{call: call, err: err}
}

func (s *Store) record(op string, size int, keys []string) error {
	n := s.counts[op]
	s.counts[op] = n + 1
	s.calls = append(s.calls, Call{Op: op, Size: size, Keys: keys})
	if f, ok := s.faults[op]; ok && f.call == n {
		return f.err
	}
	return nil
}

// UpdateObjects stages one object batch.
func (s *Store) UpdateObjects(_ context.Context, batch []domain.ObjectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(batch))
	for i, rec := range batch {
		keys[i] = rec.Key
	}
	if err := s.record(OpObjects, len(batch), keys); err != nil {
		return err
	}
	for _, rec := range batch {
		if rec.Key == "" {
			return fmt.Errorf("object record without key")
		}
	}
	s.stagedObjects = append(s.stagedObjects, batch...)
	return nil
}

// UpdateReferences stages one reference batch.
func (s *Store) UpdateReferences(_ context.Context, batch []domain.ReferenceSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(batch))
	for i, set := range batch {
		keys[i] = set.Source
	}
	if err := s.record(OpReferences, len(batch), keys); err != nil {
		return err
	}
	s.stagedRefs = append(s.stagedRefs, batch...)
	return nil
}

// Commit applies every staged batch as a new import and returns handles for
// commit tags.
func (s *Store) Commit(_ context.Context) ([]domain.PersistedHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCommit, len(s.stagedObjects), nil); err != nil {
		return nil, err
	}
	imp := &committedImport{
		id:      uuid.NewString(),
		objects: make(map[string]CommittedObject, len(s.stagedObjects)),
		refs:    make(map[string][]string, len(s.stagedRefs)),
	}
	var handles []domain.PersistedHandle
	for _, rec := range s.stagedObjects {
		id := s.nextID + 1
		if existing, ok := imp.objects[rec.Key]; ok {
			id = existing.ID
		} else {
			s.nextID = id
		}
		imp.objects[rec.Key] = CommittedObject{ObjectRecord: rec, ImportID: imp.id, ID: id}
		if domain.IsCommitTag(rec.Tag) {
			handles = append(handles, domain.PersistedHandle{Key: rec.Key, Tag: rec.Tag, ID: id})
		}
	}
	for _, set := range s.stagedRefs {
		imp.refs[set.Source] = append([]string(nil), set.Targets...)
	}
	s.imports = append(s.imports, imp)
	s.byID[imp.id] = imp
	s.stagedObjects = nil
	s.stagedRefs = nil
	return handles, nil
}

// Abort discards staged batches.
func (s *Store) Abort(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.record(OpAbort, len(s.stagedObjects), nil)
	s.stagedObjects = nil
	s.stagedRefs = nil
	return err
}

// Ping implements domain.Pinger.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(OpPing, 0, nil)
}

// Calls returns the recorded call log.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsFor returns the recorded calls of one operation.
func (s *Store) CallsFor(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Staged reports how many object records await Commit.
func (s *Store) Staged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stagedObjects)
}

func (s *Store) latest() *committedImport {
	if len(s.imports) == 0 {
		return nil
	}
	return s.imports[len(s.imports)-1]
}

// LastImportID returns the identifier of the most recent commit.
func (s *Store) LastImportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if imp := s.latest(); imp != nil {
		return imp.id
	}
	return ""
}

// Imports returns the committed import identifiers, oldest first.
func (s *Store) Imports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.imports))
	for i, imp := range s.imports {
		out[i] = imp.id
	}
	return out
}

// Object returns a committed object of the most recent import by key.
func (s *Store) Object(key string) (CommittedObject, bool) {
	return s.ObjectIn(s.LastImportID(), key)
}

// ObjectIn returns a committed object of one import by key.
func (s *Store) ObjectIn(importID, key string) (CommittedObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.byID[importID]
	if !ok {
		return CommittedObject{}, false
	}
	obj, ok := imp.objects[key]
	return obj, ok
}

// References returns the committed targets of a source key in the most
// recent import.
func (s *Store) References(source string) []string {
	return s.ReferencesIn(s.LastImportID(), source)
}

// ReferencesIn returns the committed targets of a source key in one import.
func (s *Store) ReferencesIn(importID, source string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.byID[importID]
	if !ok {
		return nil
	}
	return append([]string(nil), imp.refs[source]...)
}

// ExportState returns a copy of the committed state. Objects within an import
// are ordered by handle.
func (s *Store) ExportState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Imports: make([]CommittedImport, 0, len(s.imports)), NextID: s.nextID}
	for _, imp := range s.imports {
		out := CommittedImport{ID: imp.id, References: make(map[string][]string, len(imp.refs))}
		for _, obj := range imp.objects {
			out.Objects = append(out.Objects, obj)
		}
		sort.Slice(out.Objects, func(i, j int) bool { return out.Objects[i].ID < out.Objects[j].ID })
		for k, v := range imp.refs {
			out.References[k] = append([]string(nil), v...)
		}
		snap.Imports = append(snap.Imports, out)
	}
	return snap
}

// ImportState replaces the committed state and drops anything staged.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = make([]*committedImport, 0, len(snap.Imports))
	s.byID = make(map[string]*committedImport, len(snap.Imports))
	s.nextID = snap.NextID
	for _, in := range snap.Imports {
		imp := &committedImport{
			id:      in.ID,
			objects: make(map[string]CommittedObject, len(in.Objects)),
			refs:    make(map[string][]string, len(in.References)),
		}
		for _, obj := range in.Objects {
			obj.ImportID = in.ID
			imp.objects[obj.Key] = obj
			if obj.ID > s.nextID {
				s.nextID = obj.ID
			}
		}
		for k, v := range in.References {
			imp.refs[k] = append([]string(nil), v...)
		}
		s.imports = append(s.imports, imp)
		s.byID[imp.id] = imp
	}
	s.stagedObjects = nil
	s.stagedRefs = nil
}
