package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoInstance marks a provider that returned no object for a requested tag.
// It is a configuration error: the provider must cover every emitted tag.
var ErrNoInstance = errors.New("provider returned no instance")

// ErrUnknownTag is returned for tags outside the schema.
var ErrUnknownTag = errors.New("unknown tag")

// NoInstanceError reports the tag the provider could not instantiate.
type NoInstanceError struct {
	Tag Tag
}

func (e NoInstanceError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNoInstance, e.Tag)
}

// Unwrap allows errors.Is(err, ErrNoInstance).
func (e NoInstanceError) Unwrap() error { return ErrNoInstance }

// DuplicateIdentityError reports a symbol that would label two different
// containers of the same tag, or a container that already carries another symbol.
type DuplicateIdentityError struct {
	Tag      Tag
	Symbol   Symbol
	Existing string
	Incoming string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate identity %s %q: held by %s, requested by %s", e.Tag, e.Symbol, e.Existing, e.Incoming)
}

// UnresolvedSymbolError reports a reference target absent from the authoritative index.
type UnresolvedSymbolError struct {
	Source string
	Target Symbol
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("unresolved reference %s -> %q", e.Source, e.Target)
}

// UnknownSourceError reports a reference whose positional source names no
// container of the session.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("reference source %s has no container", e.Source)
}

// AmbiguousSymbolError reports a reference target labelling containers of several tags.
type AmbiguousSymbolError struct {
	Target     Symbol
	Candidates []string
}

func (e *AmbiguousSymbolError) Error() string {
	return fmt.Sprintf("ambiguous reference target %q: %s", e.Target, strings.Join(e.Candidates, ", "))
}
