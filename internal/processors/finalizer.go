package processors

import (
	"context"

	"omegraph/internal/graph"
)

// Finalizer resolves every reference through the authoritative index and
// stores the finalized payload on the session. It must run last.
func Finalizer() graph.Processor {
	return finalizerProcessor{}
}

type finalizerProcessor struct{}

func (finalizerProcessor) Name() string { return "finalize_references" }

func (finalizerProcessor) Stage() graph.Stage { return graph.StageFinalize }

func (finalizerProcessor) Process(_ context.Context, s *graph.Session) error {
	payload, err := s.ResolveReferences()
	if err != nil {
		return err
	}
	s.SetPayload(payload)
	return nil
}
