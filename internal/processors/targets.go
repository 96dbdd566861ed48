package processors

import (
	"context"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

// defaultLink links every source container to the single candidate of target
// when the source has no edge to that tag yet.
type defaultLink struct {
	source domain.Tag
	target domain.Tag
}

var defaultLinks = []defaultLink{
	{domain.TagImage, domain.TagInstrument},
	{domain.TagObjectiveSettings, domain.TagObjective},
	{domain.TagDetectorSettings, domain.TagDetector},
	{domain.TagLightSourceSettings, domain.TagLightSource},
}

// Targets adds default references. It runs second to last so that every model
// mutation is visible and the finalizer still captures what it adds.
func Targets() graph.Processor {
	return targetsProcessor{}
}

type targetsProcessor struct{}

func (targetsProcessor) Name() string { return "targets" }

func (targetsProcessor) Stage() graph.Stage { return graph.StageTargets }

func (targetsProcessor) Process(_ context.Context, s *graph.Session) error {
	for _, link := range defaultLinks {
		candidates := s.ListByTag(link.target)
		if len(candidates) != 1 {
			continue
		}
		target := candidates[0]
		for _, src := range s.ListByTag(link.source) {
			if hasEdgeTo(s, src, link.target) {
				continue
			}
			if target.Symbol() == "" {
				if err := s.AssignSymbol(target, domain.Symbol(target.Key())); err != nil {
					return err
				}
			}
			s.AddReference(src.Identity(), target.Symbol())
		}
	}
	return nil
}

func hasEdgeTo(s *graph.Session, src *graph.Container, tag domain.Tag) bool {
	for _, target := range s.Outgoing(src) {
		for _, c := range s.ResolveSymbol(target) {
			if c.Tag() == tag {
				return true
			}
		}
	}
	return false
}
