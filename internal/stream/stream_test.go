package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

const jsonlFixture = `
# image with one channel and an instrument
{"op":"set","tag":"Image","indices":[0],"field":"name","value":"a"}
{"op":"set","tag":"Pixels","indices":[0],"field":"sizeC","value":2}
{"op":"symbol","tag":"Instrument","indices":[0],"symbol":"Instrument:0"}
{"op":"ref","tag":"Image","indices":[0],"target":"Instrument:0"}
{"op":"symbol","tag":"Image","indices":[0],"symbol":"Image:0"}
{"op":"ref","from":"Image:0","target":"Instrument:0"}
`

const yamlFixture = `
- op: set
  tag: Image
  indices: [0]
  field: name
  value: a
- op: set
  tag: Pixels
  indices: [0]
  field: sizeC
  value: 2
- op: symbol
  tag: Instrument
  indices: [0]
  symbol: "Instrument:0"
---
- op: ref
  tag: Image
  indices: [0]
  target: "Instrument:0"
- op: symbol
  tag: Image
  indices: [0]
  symbol: "Image:0"
- op: ref
  from: "Image:0"
  target: "Instrument:0"
`

func newSession(t *testing.T) *graph.Session {
	t.Helper()
	s := graph.NewSession()
	if err := s.BeginCycle(); err != nil {
		t.Fatalf("BeginCycle: %v", err)
	}
	return s
}

func TestApplyBothFormats(t *testing.T) {
	for _, tc := range []struct{ format, input string }{
		{FormatJSONL, jsonlFixture},
		{FormatYAML, yamlFixture},
	} {
		t.Run(tc.format, func(t *testing.T) {
			dec, err := NewDecoder(tc.format, strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("NewDecoder: %v", err)
			}
			s := newSession(t)
			st, err := Apply(context.Background(), dec, s)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if st.Sets != 2 || st.Symbols != 2 || st.Refs != 2 {
				t.Fatalf("unexpected stats %+v", st)
			}
			if s.Len() != 3 {
				t.Fatalf("expected 3 containers, got %d", s.Len())
			}
			px, ok := s.Lookup(domain.Positional(domain.TagPixels, 0))
			if !ok {
				t.Fatalf("pixels not created")
			}
			if n, ok := domain.IntField(px.Object(), "sizeC"); !ok || n != 2 {
				t.Fatalf("unexpected sizeC %v", n)
			}
			payload, err := s.ResolveReferences()
			if err != nil {
				t.Fatalf("ResolveReferences: %v", err)
			}
			targets, ok := payload.Targets("Image:0")
			if !ok || len(targets) != 1 || targets[0] != "Instrument:0" {
				t.Fatalf("positional and symbolic sources must merge, got %+v", payload)
			}
		})
	}
}

func TestDecoderRejectsMalformedOps(t *testing.T) {
	cases := []string{
		`{"op":"set","tag":"Image","indices":[0]}`,
		`{"op":"symbol","tag":"Image","indices":[0]}`,
		`{"op":"ref","tag":"Image","indices":[0]}`,
		`{"op":"ref","target":"x"}`,
		`{"op":"ref","tag":"Image","from":"a","target":"x"}`,
		`{"op":"drop"}`,
		`{not json`,
	}
	for _, input := range cases {
		dec := NewJSONLDecoder(strings.NewReader(input))
		if _, err := dec.Next(); err == nil || errors.Is(err, io.EOF) {
			t.Fatalf("expected %s to be rejected, got %v", input, err)
		}
	}
	unknown := `{"op":"set","tag":"Spaceship","indices":[0],"field":"name","value":"x"}`
	if _, err := NewJSONLDecoder(strings.NewReader(unknown)).Next(); !errors.Is(err, domain.ErrUnknownTag) {
		t.Fatalf("expected unknown tag error, got %v", err)
	}
	if _, err := NewYAMLDecoder(strings.NewReader("- op: nope\n")).Next(); err == nil {
		t.Fatalf("expected yaml validation error")
	}
	if _, err := NewDecoder("xml", strings.NewReader("")); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestApplySurfacesSessionErrors(t *testing.T) {
	input := `{"op":"symbol","tag":"Image","indices":[0],"symbol":"dup"}
{"op":"symbol","tag":"Image","indices":[1],"symbol":"dup"}`
	s := newSession(t)
	st, err := Apply(context.Background(), NewJSONLDecoder(strings.NewReader(input)), s)
	var dup *domain.DuplicateIdentityError
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate identity error, got %v", err)
	}
	if st.Symbols != 1 {
		t.Fatalf("expected one applied op before the failure, got %+v", st)
	}
}

func TestApplyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Apply(ctx, NewJSONLDecoder(strings.NewReader(jsonlFixture)), newSession(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPopulateAndFormatForPath(t *testing.T) {
	s := newSession(t)
	populate := Populate(NewYAMLDecoder(strings.NewReader(yamlFixture)))
	if err := populate(context.Background(), s); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 containers, got %d", s.Len())
	}
	if FormatForPath("a/b.YML") != FormatYAML || FormatForPath("x.jsonl") != FormatJSONL || FormatForPath("noext") != FormatJSONL {
		t.Fatalf("unexpected format detection")
	}
	if _, err := NewYAMLDecoder(strings.NewReader("")).Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("empty yaml must be EOF, got %v", err)
	}
}
