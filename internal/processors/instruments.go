package processors

import (
	"context"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

// instrumentChildren are the tags whose first index names their instrument.
var instrumentChildren = []domain.Tag{
	domain.TagMicroscope,
	domain.TagObjective,
	domain.TagDetector,
	domain.TagLightSource,
	domain.TagFilter,
	domain.TagDichroic,
}

// Instruments drops Instrument containers that own no components and that no
// edge points at.
func Instruments() graph.Processor {
	return instrumentsProcessor{}
}

type instrumentsProcessor struct{}

func (instrumentsProcessor) Name() string { return "instruments" }

func (instrumentsProcessor) Process(_ context.Context, s *graph.Session) error {
	for _, inst := range s.ListByTag(domain.TagInstrument) {
		idx := inst.Identity().Index(0)
		children := 0
		for _, tag := range instrumentChildren {
			children += s.Count(tag, idx)
		}
		if children > 0 || s.Referenced(inst) || len(s.Outgoing(inst)) > 0 {
			continue
		}
		s.Remove(inst.Identity())
	}
	return nil
}
