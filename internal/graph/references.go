package graph

import "omegraph/pkg/domain"

// AnyTag matches every tag in Session.CountReferences.
const AnyTag domain.Tag = ""

type edgeList struct {
	source  domain.Identity
	targets []domain.Symbol
	seen    map[domain.Symbol]struct{}
}

// References is the symbolic reference graph. Edges point from a source
// identity to a target symbol and stay unresolved until finalisation.
type References struct {
	order   []string
	sources map[string]*edgeList
}

func newReferences() *References {
	return &References{sources: make(map[string]*edgeList)}
}

// Add records source -> target and reports whether the edge is new.
func (r *References) Add(source domain.Identity, target domain.Symbol) bool {
	key := source.Key()
	list, ok := r.sources[key]
	if !ok {
		list = &edgeList{source: source, seen: make(map[domain.Symbol]struct{})}
		r.sources[key] = list
		r.order = append(r.order, key)
	}
	if _, dup := list.seen[target]; dup {
		return false
	}
	list.seen[target] = struct{}{}
	list.targets = append(list.targets, target)
	return true
}

// From returns the targets of source in insertion order.
func (r *References) From(source domain.Identity) []domain.Symbol {
	list, ok := r.sources[source.Key()]
	if !ok {
		return nil
	}
	return append([]domain.Symbol(nil), list.targets...)
}

// Has reports whether the edge source -> target exists.
func (r *References) Has(source domain.Identity, target domain.Symbol) bool {
	list, ok := r.sources[source.Key()]
	if !ok {
		return false
	}
	_, found := list.seen[target]
	return found
}

// Sources returns every source identity in first-insertion order.
func (r *References) Sources() []domain.Identity {
	out := make([]domain.Identity, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.sources[key].source)
	}
	return out
}

// Len returns the total number of edges.
func (r *References) Len() int {
	n := 0
	for _, list := range r.sources {
		n += len(list.targets)
	}
	return n
}

func (r *References) removeSource(source domain.Identity) {
	key := source.Key()
	if _, ok := r.sources[key]; !ok {
		return
	}
	delete(r.sources, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// CountReferences returns how many edges run from a source of sourceTag to a target of
// targetTag. AnyTag matches everything. Symbolic sources and targets are
// classified through the authoritative index; a symbol that does not resolve
// only matches AnyTag.
func (s *Session) CountReferences(sourceTag, targetTag domain.Tag) int {
	n := 0
	for _, key := range s.refs.order {
		list := s.refs.sources[key]
		if !tagMatches(sourceTag, s.tagOf(list.source)) {
			continue
		}
		for _, target := range list.targets {
			if tagMatches(targetTag, s.tagOf(domain.SymbolIdentity(target))) {
				n++
			}
		}
	}
	return n
}

func tagMatches(want, got domain.Tag) bool {
	return want == AnyTag || want == got
}

// tagOf returns the tag of id, resolving symbols when the index knows them.
func (s *Session) tagOf(id domain.Identity) domain.Tag {
	if id.IsPositional() {
		return id.Tag()
	}
	matches := s.ResolveSymbol(id.Symbol())
	if len(matches) == 1 {
		return matches[0].id.Tag()
	}
	return AnyTag
}

// ResolveSymbol returns every container labelled symbol across tags, in
// lexical tag order.
func (s *Session) ResolveSymbol(symbol domain.Symbol) []*Container {
	var out []*Container
	for _, tag := range s.indexedTags() {
		if c, ok := s.index[tag][symbol]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Outgoing returns the targets of c, whether the edges were recorded against
// its positional identity or its symbol.
func (s *Session) Outgoing(c *Container) []domain.Symbol {
	out := s.refs.From(c.id)
	if c.symbol == "" {
		return out
	}
	for _, target := range s.refs.From(domain.SymbolIdentity(c.symbol)) {
		if !s.refs.Has(c.id, target) {
			out = append(out, target)
		}
	}
	return out
}

// Referenced reports whether any edge targets c's symbol.
func (s *Session) Referenced(c *Container) bool {
	if c.symbol == "" {
		return false
	}
	for _, list := range s.refs.sources {
		if _, ok := list.seen[c.symbol]; ok {
			return true
		}
	}
	return false
}
