package processors

import (
	"context"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

var planeCoordinates = []string{"theZ", "theC", "theT"}

// Planes defaults missing plane coordinates to zero and records planeCount on
// every Pixels container.
func Planes() graph.Processor {
	return planesProcessor{}
}

type planesProcessor struct{}

func (planesProcessor) Name() string { return "planes" }

func (planesProcessor) Process(_ context.Context, s *graph.Session) error {
	for _, plane := range s.ListByTag(domain.TagPlane) {
		obj := plane.Object()
		for _, field := range planeCoordinates {
			if _, ok := obj.Get(field); ok {
				continue
			}
			if err := obj.Set(field, 0); err != nil {
				return err
			}
		}
	}
	for _, pixels := range s.ListByTag(domain.TagPixels) {
		image := pixels.Identity().Index(0)
		if err := pixels.Object().Set("planeCount", s.Count(domain.TagPlane, image)); err != nil {
			return err
		}
	}
	return nil
}
