// Package stream decodes setter streams produced by metadata readers and
// replays them against a graph session.
//
// A stream is a sequence of operations:
//
//	{"op":"set","tag":"Image","indices":[0],"field":"name","value":"a"}
//	{"op":"symbol","tag":"Instrument","indices":[0],"symbol":"Instrument:0"}
//	{"op":"ref","tag":"Image","indices":[0],"target":"Instrument:0"}
//
// encoded either as JSON lines or as a YAML list.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"omegraph/pkg/domain"
)

// Operation kinds.
const (
	OpSet    = "set"
	OpSymbol = "symbol"
	OpRef    = "ref"
)

// Formats accepted by NewDecoder.
const (
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
)

// Op is one decoded stream operation. A ref op names its source either
// positionally (Tag and Indices) or by symbol (From).
type Op struct {
	Op      string        `json:"op" yaml:"op"`
	Tag     domain.Tag    `json:"tag,omitempty" yaml:"tag,omitempty"`
	Indices []int         `json:"indices,omitempty" yaml:"indices,omitempty"`
	Field   string        `json:"field,omitempty" yaml:"field,omitempty"`
	Value   any           `json:"value,omitempty" yaml:"value,omitempty"`
	Symbol  domain.Symbol `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	From    domain.Symbol `json:"from,omitempty" yaml:"from,omitempty"`
	Target  domain.Symbol `json:"target,omitempty" yaml:"target,omitempty"`
}

// Validate checks that op carries the fields its kind needs.
func (o Op) Validate() error {
	switch o.Op {
	case OpSet:
		if o.Tag == "" || o.Field == "" {
			return fmt.Errorf("set requires tag and field")
		}
	case OpSymbol:
		if o.Tag == "" || o.Symbol == "" {
			return fmt.Errorf("symbol requires tag and symbol")
		}
	case OpRef:
		if o.Target == "" {
			return fmt.Errorf("ref requires a target")
		}
		if o.From == "" && o.Tag == "" {
			return fmt.Errorf("ref requires a positional or symbolic source")
		}
		if o.From != "" && o.Tag != "" {
			return fmt.Errorf("ref source must be positional or symbolic, not both")
		}
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	if o.Tag != "" && !domain.Known(o.Tag) {
		return fmt.Errorf("%w %q", domain.ErrUnknownTag, o.Tag)
	}
	return nil
}

// Decoder yields operations until io.EOF.
type Decoder interface {
	Next() (Op, error)
}

// NewDecoder returns a decoder for format.
func NewDecoder(format string, r io.Reader) (Decoder, error) {
	switch strings.ToLower(format) {
	case FormatJSONL, "json", "ndjson":
		return NewJSONLDecoder(r), nil
	case FormatYAML, "yml":
		return NewYAMLDecoder(r), nil
	default:
		return nil, fmt.Errorf("unknown stream format %q", format)
	}
}

// FormatForPath guesses the stream format from a file extension.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// JSONLDecoder reads one JSON object per line. Blank lines and lines starting
// with '#' are skipped.
type JSONLDecoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLDecoder wraps r.
func NewJSONLDecoder(r io.Reader) *JSONLDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &JSONLDecoder{scanner: sc}
}

// Next implements Decoder.
func (d *JSONLDecoder) Next() (Op, error) {
	for d.scanner.Scan() {
		d.line++
		raw := bytes.TrimSpace(d.scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var op Op
		if err := json.Unmarshal(raw, &op); err != nil {
			return Op{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		if err := op.Validate(); err != nil {
			return Op{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		return op, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Op{}, fmt.Errorf("line %d: %w", d.line, err)
	}
	return Op{}, io.EOF
}

// YAMLDecoder reads YAML documents, each holding a list of operations.
type YAMLDecoder struct {
	dec     *yaml.Decoder
	pending []Op
	doc     int
}

// NewYAMLDecoder wraps r.
func NewYAMLDecoder(r io.Reader) *YAMLDecoder {
	return &YAMLDecoder{dec: yaml.NewDecoder(r)}
}

// Next implements Decoder.
func (d *YAMLDecoder) Next() (Op, error) {
	for len(d.pending) == 0 {
		var ops []Op
		if err := d.dec.Decode(&ops); err != nil {
			if errors.Is(err, io.EOF) {
				return Op{}, io.EOF
			}
			return Op{}, fmt.Errorf("document %d: %w", d.doc+1, err)
		}
		d.doc++
		for i, op := range ops {
			if err := op.Validate(); err != nil {
				return Op{}, fmt.Errorf("document %d op %d: %w", d.doc, i, err)
			}
		}
		d.pending = ops
	}
	op := d.pending[0]
	d.pending = d.pending[1:]
	return op, nil
}
