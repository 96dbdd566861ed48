package graph

import "omegraph/pkg/domain"

// Container is one graph node: a positional identity paired with its owned
// domain object and an optional symbol.
type Container struct {
	id      domain.Identity
	indexes map[string]int
	object  domain.Object
	symbol  domain.Symbol
	handle  int64
}

// Identity returns the container's positional identity.
func (c *Container) Identity() domain.Identity { return c.id }

// Tag returns the container's tag.
func (c *Container) Tag() domain.Tag { return c.id.Tag() }

// Key returns the canonical string of the container identity.
func (c *Container) Key() string { return c.id.String() }

// Object returns the owned domain object.
func (c *Container) Object() domain.Object { return c.object }

// Symbol returns the assigned symbol, if any.
func (c *Container) Symbol() domain.Symbol { return c.symbol }

// Indexes returns the index tuple keyed by schema index name.
func (c *Container) Indexes() map[string]int {
	out := make(map[string]int, len(c.indexes))
	for k, v := range c.indexes {
		out[k] = v
	}
	return out
}

// Handle is negative and session-local until commit. Containers of commit tags
// carry their canonical store ID once the graph has been committed.
func (c *Container) Handle() int64 { return c.handle }

// Committed reports whether the handle has been replaced by a store ID.
func (c *Container) Committed() bool { return c.handle > 0 }

// Record converts the container into its persistence wire form.
func (c *Container) Record() domain.ObjectRecord {
	return domain.ObjectRecord{
		Key:     c.id.String(),
		Tag:     c.id.Tag(),
		Indices: c.id.Indices(),
		Symbol:  c.symbol,
		Fields:  c.object.Fields(),
	}
}

// Prepared is pre-existing metadata injected at the start of the next cycle.
type Prepared struct {
	Identity domain.Identity
	Object   domain.Object
	Symbol   domain.Symbol
}

// Stage queues prepared metadata for the next BeginCycle only.
func (s *Session) Stage(prepared ...Prepared) {
	s.prepared = append(s.prepared, prepared...)
}

// Staged returns the number of prepared entries awaiting the next cycle.
func (s *Session) Staged() int { return len(s.prepared) }

func (s *Session) inject(p Prepared) error {
	if p.Object == nil {
		return domain.NoInstanceError{Tag: p.Identity.Tag()}
	}
	c, err := s.getOrCreate(p.Identity, func() domain.Object { return p.Object })
	if err != nil {
		return err
	}
	if p.Symbol != "" {
		return s.AssignSymbol(c, p.Symbol)
	}
	return nil
}
