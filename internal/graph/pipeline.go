package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"omegraph/pkg/domain"
)

// Processor is one graph-mutating pipeline stage.
type Processor interface {
	Name() string
	Process(ctx context.Context, s *Session) error
}

// Stage is the positional role a processor declares.
type Stage int

const (
	// StageModel processors apply domain-level mutations in any order.
	StageModel Stage = iota
	// StageTargets processors add default links and must run second to last.
	StageTargets
	// StageFinalize processors resolve the reference graph and must run last.
	StageFinalize
)

func (s Stage) String() string {
	switch s {
	case StageModel:
		return "model"
	case StageTargets:
		return "targets"
	case StageFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Staged is implemented by processors with a fixed pipeline position.
// Processors that do not implement it are StageModel.
type Staged interface {
	Stage() Stage
}

// ErrPipelineOrder reports a processor list that violates the positional contract.
var ErrPipelineOrder = errors.New("invalid processor order")

func stageOf(p Processor) Stage {
	if st, ok := p.(Staged); ok {
		return st.Stage()
	}
	return StageModel
}

// ValidatePipeline checks that a targets processor, when present, is second to
// last and that a finalize processor, when present, is last. Each may appear
// at most once.
func ValidatePipeline(procs []Processor) error {
	n := len(procs)
	var targets, finals int
	for i, p := range procs {
		if p == nil {
			return fmt.Errorf("%w: nil processor at position %d", ErrPipelineOrder, i)
		}
		switch stageOf(p) {
		case StageTargets:
			targets++
			if i != n-2 {
				return fmt.Errorf("%w: %s must run second to last, found at position %d of %d", ErrPipelineOrder, p.Name(), i, n)
			}
		case StageFinalize:
			finals++
			if i != n-1 {
				return fmt.Errorf("%w: %s must run last, found at position %d of %d", ErrPipelineOrder, p.Name(), i, n)
			}
		}
	}
	if targets > 1 || finals > 1 {
		return fmt.Errorf("%w: %d targets and %d finalize processors", ErrPipelineOrder, targets, finals)
	}
	if targets == 1 && finals == 0 {
		return fmt.Errorf("%w: targets processor without a finalizer", ErrPipelineOrder)
	}
	return nil
}

// RunPipeline validates the processor list and runs each processor exactly
// once, in order. The first error aborts the run.
func (s *Session) RunPipeline(ctx context.Context, procs ...Processor) error {
	if err := ValidatePipeline(procs); err != nil {
		return err
	}
	for _, p := range procs {
		s.logger.Debug("running processor", "processor", p.Name(), "stage", stageOf(p).String())
		if err := p.Process(ctx, s); err != nil {
			return fmt.Errorf("processor %s: %w", p.Name(), err)
		}
	}
	return nil
}

// ReferenceEntry is one source and its resolved targets.
type ReferenceEntry struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// ReferencePayload is the finalized reference structure handed to the writer.
// Entries are ordered by the session comparator over their source identities.
type ReferencePayload struct {
	Entries []ReferenceEntry `json:"entries"`
}

// Len returns the number of source keys.
func (p ReferencePayload) Len() int { return len(p.Entries) }

// Edges returns the total number of resolved targets.
func (p ReferencePayload) Edges() int {
	n := 0
	for _, e := range p.Entries {
		n += len(e.Targets)
	}
	return n
}

// Keys returns the source keys in payload order.
func (p ReferencePayload) Keys() []string {
	keys := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		keys[i] = e.Source
	}
	return keys
}

// Targets returns the resolved targets of source.
func (p ReferencePayload) Targets(source string) ([]string, bool) {
	for _, e := range p.Entries {
		if e.Source == source {
			return append([]string(nil), e.Targets...), true
		}
	}
	return nil, false
}

// ResolveReferences resolves every edge through the authoritative index and
// builds the finalized payload. Any source or target that does not resolve to
// exactly one container is an error; the payload never omits edges.
func (s *Session) ResolveReferences() (ReferencePayload, error) {
	type pending struct {
		id      domain.Identity
		targets []domain.Identity
		seen    map[string]struct{}
	}
	bySource := make(map[string]*pending)
	for _, key := range s.refs.order {
		list := s.refs.sources[key]
		src, err := s.resolveSource(list.source)
		if err != nil {
			return ReferencePayload{}, err
		}
		entry, ok := bySource[src.Key()]
		if !ok {
			entry = &pending{id: src, seen: make(map[string]struct{})}
			bySource[src.Key()] = entry
		}
		for _, target := range list.targets {
			resolved, err := s.resolveIdentity(domain.SymbolIdentity(target), src.String())
			if err != nil {
				return ReferencePayload{}, err
			}
			if _, dup := entry.seen[resolved.Key()]; dup {
				continue
			}
			entry.seen[resolved.Key()] = struct{}{}
			entry.targets = append(entry.targets, resolved)
		}
	}

	entries := make([]*pending, 0, len(bySource))
	for _, e := range bySource {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return s.cmp.Less(entries[i].id, entries[j].id) })

	payload := ReferencePayload{Entries: make([]ReferenceEntry, 0, len(entries))}
	for _, e := range entries {
		s.cmp.SortIdentities(e.targets)
		targets := make([]string, len(e.targets))
		for i, t := range e.targets {
			targets[i] = t.String()
		}
		payload.Entries = append(payload.Entries, ReferenceEntry{Source: e.id.String(), Targets: targets})
	}
	return payload, nil
}

// resolveSource resolves a reference source. Positional sources must name a
// registered container.
func (s *Session) resolveSource(id domain.Identity) (domain.Identity, error) {
	if id.IsPositional() {
		if _, ok := s.containers[id.Key()]; !ok {
			return domain.Identity{}, &domain.UnknownSourceError{Source: id.String()}
		}
		return id, nil
	}
	return s.resolveIdentity(id, id.String())
}

// resolveIdentity maps id onto its positional form. Positional identities are
// returned unchanged; symbols go through the authoritative index.
func (s *Session) resolveIdentity(id domain.Identity, from string) (domain.Identity, error) {
	if id.IsPositional() {
		return id, nil
	}
	matches := s.ResolveSymbol(id.Symbol())
	switch len(matches) {
	case 0:
		return domain.Identity{}, &domain.UnresolvedSymbolError{Source: from, Target: id.Symbol()}
	case 1:
		return matches[0].id, nil
	default:
		candidates := make([]string, len(matches))
		for i, c := range matches {
			candidates[i] = c.id.String()
		}
		return domain.Identity{}, &domain.AmbiguousSymbolError{Target: id.Symbol(), Candidates: candidates}
	}
}

func (s *Session) indexedTags() []domain.Tag {
	tags := make([]domain.Tag, 0, len(s.index))
	for tag, byTag := range s.index {
		if len(byTag) > 0 {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
