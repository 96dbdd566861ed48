// Package graph assembles the per-import object graph: the container
// registry, the authoritative symbol index, the symbolic reference graph,
// the hierarchy comparator and the processor pipeline driver.
//
// A Session is owned by exactly one import at a time. It performs no locking
// and no background work; callers must not share it between concurrent
// population sequences.
package graph

import (
	"fmt"
	"strings"

	"omegraph/pkg/domain"
)

// Logger is the structured logging surface used by the session.
type Logger = domain.Logger

// Option configures a Session.
type Option func(*Session)

// WithProvider sets the instance provider used on registry misses.
func WithProvider(p domain.Provider) Option {
	return func(s *Session) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithComparator sets the comparator used for flattening and payload ordering.
func WithComparator(c Comparator) Option {
	return func(s *Session) { s.cmp = c }
}

// Session is the explicit graph state of one population cycle.
type Session struct {
	provider domain.Provider
	logger   Logger
	cmp      Comparator

	containers map[string]*Container
	order      []*Container
	index      map[domain.Tag]map[domain.Symbol]*Container
	refs       *References
	payload    *ReferencePayload
	seq        int64
	cycle      int

	prepared []Prepared
}

// NewSession constructs an empty session. Without WithProvider the schema's
// DefaultProvider is used.
func NewSession(opts ...Option) *Session {
	s := &Session{
		provider: domain.DefaultProvider(),
		logger:   domain.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Session) reset() {
	s.containers = make(map[string]*Container)
	s.order = nil
	s.index = make(map[domain.Tag]map[domain.Symbol]*Container)
	s.refs = newReferences()
	s.payload = nil
	s.seq = 0
}

// Comparator returns the session's ordering.
func (s *Session) Comparator() Comparator { return s.cmp }

// Cycle returns the number of cycles begun on this session.
func (s *Session) Cycle() int { return s.cycle }

// BeginCycle atomically resets the registry, the authoritative index and the
// reference graph, then injects any prepared metadata staged for this cycle.
// Staged state is consumed whether or not injection succeeds.
func (s *Session) BeginCycle() error {
	s.reset()
	s.cycle++
	prepared := s.prepared
	s.prepared = nil
	for _, p := range prepared {
		if err := s.inject(p); err != nil {
			return fmt.Errorf("inject prepared %s: %w", p.Identity, err)
		}
	}
	s.logger.Debug("graph cycle started", "cycle", s.cycle, "prepared", len(prepared))
	return nil
}

// EndCycle discards staged metadata that was never consumed.
func (s *Session) EndCycle() {
	if len(s.prepared) > 0 {
		s.logger.Debug("discarding unconsumed prepared metadata", "count", len(s.prepared))
	}
	s.prepared = nil
}

// Close drops all graph state.
func (s *Session) Close() {
	s.reset()
	s.prepared = nil
}

// GetOrCreate returns the container for (tag, indices), creating it through
// the provider on a miss. It is the only path that creates containers.
func (s *Session) GetOrCreate(tag domain.Tag, indices ...int) (*Container, error) {
	return s.getOrCreate(domain.Positional(tag, indices...), func() domain.Object {
		return s.provider.New(tag)
	})
}

func (s *Session) getOrCreate(id domain.Identity, instantiate func() domain.Object) (*Container, error) {
	if err := validatePositional(id); err != nil {
		return nil, err
	}
	key := id.Key()
	if c, ok := s.containers[key]; ok {
		return c, nil
	}
	obj := instantiate()
	if obj == nil {
		return nil, domain.NoInstanceError{Tag: id.Tag()}
	}
	s.seq++
	c := &Container{
		id:      id,
		indexes: domain.IndexNames(id.Tag(), id.Indices()),
		object:  obj,
		handle:  -s.seq,
	}
	s.containers[key] = c
	s.order = append(s.order, c)
	return c, nil
}

func validatePositional(id domain.Identity) error {
	if !id.IsPositional() {
		return fmt.Errorf("identity %q is not positional", id.String())
	}
	if id.Tag() == "" {
		return fmt.Errorf("empty tag")
	}
	if strings.ContainsRune(string(id.Tag()), ':') {
		return fmt.Errorf("tag %q contains the index separator", id.Tag())
	}
	for i := 0; i < id.Len(); i++ {
		if id.Index(i) < 0 {
			return fmt.Errorf("%s: negative index at position %d", id, i)
		}
	}
	if arity := domain.Arity(id.Tag()); arity >= 0 && arity != id.Len() {
		return fmt.Errorf("%s: expected %d indices, got %d", id.Tag(), arity, id.Len())
	}
	return nil
}

// Set is the generic setter surface: get-or-create the container for
// (tag, indices) and set one field on its domain object.
func (s *Session) Set(tag domain.Tag, field string, value any, indices ...int) error {
	c, err := s.GetOrCreate(tag, indices...)
	if err != nil {
		return err
	}
	return c.object.Set(field, value)
}

// AssignSymbol labels c with symbol and records it in the authoritative index.
// Labelling a different container of the same tag with the same symbol, or
// relabelling an already labelled container, is a structural conflict.
func (s *Session) AssignSymbol(c *Container, symbol domain.Symbol) error {
	if c == nil {
		return fmt.Errorf("assign symbol %q: nil container", symbol)
	}
	if symbol == "" {
		return fmt.Errorf("assign symbol to %s: empty symbol", c.id)
	}
	if s.containers[c.id.Key()] != c {
		return fmt.Errorf("assign symbol %q: container %s is not registered", symbol, c.id)
	}
	tag := c.id.Tag()
	byTag := s.index[tag]
	if byTag == nil {
		byTag = make(map[domain.Symbol]*Container)
		s.index[tag] = byTag
	}
	if existing, ok := byTag[symbol]; ok {
		if existing == c {
			return nil
		}
		return &domain.DuplicateIdentityError{Tag: tag, Symbol: symbol, Existing: existing.id.String(), Incoming: c.id.String()}
	}
	if c.symbol != "" {
		return &domain.DuplicateIdentityError{Tag: tag, Symbol: symbol, Existing: string(c.symbol), Incoming: c.id.String()}
	}
	byTag[symbol] = c
	c.symbol = symbol
	return nil
}

// LookupBySymbol finds the container of tag labelled symbol.
func (s *Session) LookupBySymbol(tag domain.Tag, symbol domain.Symbol) (*Container, bool) {
	c, ok := s.index[tag][symbol]
	return c, ok
}

// Lookup returns the container registered under a positional identity.
func (s *Session) Lookup(id domain.Identity) (*Container, bool) {
	c, ok := s.containers[id.Key()]
	return c, ok
}

// ApplyHandles replaces the transient handles of the containers named by
// committed handles and returns how many were replaced. Handles for keys
// the session does not hold are ignored.
func (s *Session) ApplyHandles(handles []domain.PersistedHandle) int {
	if len(handles) == 0 {
		return 0
	}
	byKey := make(map[string]*Container, len(s.order))
	for _, c := range s.order {
		byKey[c.Key()] = c
	}
	n := 0
	for _, h := range handles {
		if c, ok := byKey[h.Key]; ok && h.ID > 0 {
			c.handle = h.ID
			n++
		}
	}
	return n
}

// ListByTag returns the containers of tag in creation order.
func (s *Session) ListByTag(tag domain.Tag) []*Container {
	var out []*Container
	for _, c := range s.order {
		if c.id.Tag() == tag {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many containers of tag have indices starting with prefix.
func (s *Session) Count(tag domain.Tag, prefix ...int) int {
	n := 0
	for _, c := range s.order {
		if c.id.Tag() == tag && c.id.HasPrefix(prefix) {
			n++
		}
	}
	return n
}

// Len returns the number of registered containers.
func (s *Session) Len() int { return len(s.order) }

// Containers returns all containers in creation order.
func (s *Session) Containers() []*Container {
	return append([]*Container(nil), s.order...)
}

// Remove deletes a container, its symbol index entry and its outgoing edges.
// Edges from other containers that target its symbol are left in place and
// will fail resolution at finalisation.
func (s *Session) Remove(id domain.Identity) bool {
	key := id.Key()
	c, ok := s.containers[key]
	if !ok {
		return false
	}
	delete(s.containers, key)
	for i, cur := range s.order {
		if cur == c {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if c.symbol != "" {
		delete(s.index[c.id.Tag()], c.symbol)
		s.refs.removeSource(domain.SymbolIdentity(c.symbol))
	}
	s.refs.removeSource(id)
	return true
}

// References exposes the session's reference graph.
func (s *Session) References() *References { return s.refs }

// AddReference records that source refers to target.
func (s *Session) AddReference(source domain.Identity, target domain.Symbol) bool {
	return s.refs.Add(source, target)
}

// Flatten returns every container ordered by the session comparator.
func (s *Session) Flatten() []*Container {
	out := s.Containers()
	s.cmp.Sort(out)
	return out
}

// Payload returns the finalized reference payload, if the finalizer ran.
func (s *Session) Payload() (ReferencePayload, bool) {
	if s.payload == nil {
		return ReferencePayload{}, false
	}
	return *s.payload, true
}

// SetPayload stores the finalized reference payload.
func (s *Session) SetPayload(p ReferencePayload) {
	s.payload = &p
}
