package domain

import (
	"strconv"
	"strings"
)

// Tag names the kind of a graph node, e.g. "Image" or "Channel".
type Tag string

// Symbol is an opaque label supplied by the source stream, e.g. "Image:0".
type Symbol string

// IdentityKind distinguishes positional identities from symbolic ones.
type IdentityKind uint8

const (
	// KindPositional identities are a tag plus an index tuple.
	KindPositional IdentityKind = iota + 1
	// KindSymbol identities are an externally supplied symbol.
	KindSymbol
)

// Identity names a graph node either positionally or by symbol. The zero value
// is invalid. Identities are immutable once constructed.
type Identity struct {
	kind    IdentityKind
	tag     Tag
	indices []int
	symbol  Symbol
}

// Positional builds a positional identity. The index slice is copied.
func Positional(tag Tag, indices ...int) Identity {
	cp := make([]int, len(indices))
	copy(cp, indices)
	return Identity{kind: KindPositional, tag: tag, indices: cp}
}

// SymbolIdentity builds a symbolic identity from a raw symbol.
func SymbolIdentity(raw Symbol) Identity {
	return Identity{kind: KindSymbol, symbol: raw}
}

// Kind reports whether the identity is positional or symbolic.
func (id Identity) Kind() IdentityKind { return id.kind }

// IsPositional reports whether the identity carries a tag and index tuple.
func (id Identity) IsPositional() bool { return id.kind == KindPositional }

// IsZero reports whether the identity was never initialised.
func (id Identity) IsZero() bool { return id.kind == 0 }

// Tag returns the type tag of a positional identity ("" for symbols).
func (id Identity) Tag() Tag { return id.tag }

// Symbol returns the raw symbol of a symbolic identity ("" for positional).
func (id Identity) Symbol() Symbol { return id.symbol }

// Indices returns a copy of the index tuple.
func (id Identity) Indices() []int {
	cp := make([]int, len(id.indices))
	copy(cp, id.indices)
	return cp
}

// Len returns the length of the index tuple.
func (id Identity) Len() int { return len(id.indices) }

// Index returns the i-th index element.
func (id Identity) Index(i int) int { return id.indices[i] }

// HasPrefix reports whether the leading indices equal prefix.
func (id Identity) HasPrefix(prefix []int) bool {
	if len(prefix) > len(id.indices) {
		return false
	}
	for i, v := range prefix {
		if id.indices[i] != v {
			return false
		}
	}
	return true
}

// Equal compares two identities. A positional identity is never equal to a
// symbolic one; symbol resolution goes through the authoritative index.
func (id Identity) Equal(other Identity) bool {
	if id.kind != other.kind {
		return false
	}
	if id.kind == KindSymbol {
		return id.symbol == other.symbol
	}
	if id.tag != other.tag || len(id.indices) != len(other.indices) {
		return false
	}
	for i := range id.indices {
		if id.indices[i] != other.indices[i] {
			return false
		}
	}
	return true
}

// String returns the canonical string form: "Tag:i:j" for positional
// identities and the raw symbol otherwise.
func (id Identity) String() string {
	if id.kind == KindSymbol {
		return string(id.symbol)
	}
	var sb strings.Builder
	sb.WriteString(string(id.tag))
	for _, idx := range id.indices {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

// Key returns a map key that never collides across identity kinds.
func (id Identity) Key() string {
	switch id.kind {
	case KindPositional:
		return "p|" + id.String()
	case KindSymbol:
		return "s|" + string(id.symbol)
	default:
		return ""
	}
}
