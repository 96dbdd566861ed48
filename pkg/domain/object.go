package domain

import (
	"fmt"
	"sort"
)

// Object is the domain payload owned by a graph container. Concrete field
// semantics belong to the metadata schema; the graph only needs to set, read
// and serialise fields.
type Object interface {
	Tag() Tag
	Set(field string, value any) error
	Get(field string) (any, bool)
	Fields() map[string]any
}

// Provider instantiates fresh domain objects by tag. A nil return means the
// provider does not support the tag.
type Provider interface {
	New(tag Tag) Object
}

// Record is the default Object: a tagged bag of primitive field values.
type Record struct {
	tag    Tag
	fields map[string]any
}

// NewRecord returns an empty record for tag.
func NewRecord(tag Tag) *Record {
	return &Record{tag: tag, fields: make(map[string]any)}
}

// Tag returns the record's tag.
func (r *Record) Tag() Tag { return r.tag }

// Set stores a field value. Empty field names are rejected.
func (r *Record) Set(field string, value any) error {
	if field == "" {
		return fmt.Errorf("%s: empty field name", r.tag)
	}
	r.fields[field] = value
	return nil
}

// Get returns a field value.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Fields returns a shallow copy of all field values.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// FieldNames returns the sorted field names present on the record.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.fields))
	for k := range r.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FactoryProvider is a closed tag -> constructor table chosen at configuration time.
type FactoryProvider map[Tag]func() Object

// New implements Provider.
func (p FactoryProvider) New(tag Tag) Object {
	ctor, ok := p[tag]
	if !ok || ctor == nil {
		return nil
	}
	return ctor()
}

// Supports reports whether the provider has a constructor for tag.
func (p FactoryProvider) Supports(tag Tag) bool {
	ctor, ok := p[tag]
	return ok && ctor != nil
}

// tagDefaults seeds freshly created records with schema defaults.
var tagDefaults = map[Tag]map[string]any{
	TagPixels:  {"dimensionOrder": "XYZCT"},
	TagChannel: {"samplesPerPixel": 1},
}

// DefaultProvider returns a provider covering every tag in the schema.
func DefaultProvider() FactoryProvider {
	p := make(FactoryProvider, len(tagSchema))
	for tag := range tagSchema {
		p[tag] = recordConstructor(tag)
	}
	return p
}

func recordConstructor(tag Tag) func() Object {
	return func() Object {
		rec := NewRecord(tag)
		for k, v := range tagDefaults[tag] {
			rec.fields[k] = v
		}
		return rec
	}
}

// IntField reads a numeric field as an int, accepting the integer and float
// kinds produced by JSON and YAML decoding.
func IntField(obj Object, field string) (int, bool) {
	v, ok := obj.Get(field)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}
