package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

// Stats counts the operations applied by Apply.
type Stats struct {
	Sets    int
	Symbols int
	Refs    int
}

// Total returns the number of applied operations.
func (s Stats) Total() int { return s.Sets + s.Symbols + s.Refs }

// Apply replays every operation of dec against s. The context is checked
// between operations.
func Apply(ctx context.Context, dec Decoder, s *graph.Session) (Stats, error) {
	var st Stats
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		op, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		if err := applyOp(s, op); err != nil {
			return st, fmt.Errorf("op %d (%s): %w", st.Total()+1, op.Op, err)
		}
		switch op.Op {
		case OpSet:
			st.Sets++
		case OpSymbol:
			st.Symbols++
		case OpRef:
			st.Refs++
		}
	}
}

func applyOp(s *graph.Session, op Op) error {
	switch op.Op {
	case OpSet:
		return s.Set(op.Tag, op.Field, op.Value, op.Indices...)
	case OpSymbol:
		c, err := s.GetOrCreate(op.Tag, op.Indices...)
		if err != nil {
			return err
		}
		return s.AssignSymbol(c, op.Symbol)
	case OpRef:
		source := domain.SymbolIdentity(op.From)
		if op.From == "" {
			c, err := s.GetOrCreate(op.Tag, op.Indices...)
			if err != nil {
				return err
			}
			source = c.Identity()
		}
		s.AddReference(source, op.Target)
		return nil
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

// Populate adapts dec into a session populate step for the importer.
func Populate(dec Decoder) func(context.Context, *graph.Session) error {
	return func(ctx context.Context, s *graph.Session) error {
		_, err := Apply(ctx, dec, s)
		return err
	}
}
