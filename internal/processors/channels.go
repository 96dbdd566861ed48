package processors

import (
	"context"
	"fmt"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

// Channels materialises one Channel per image channel declared by Pixels.sizeC
// and fills in missing channel names.
func Channels() graph.Processor {
	return channelsProcessor{}
}

type channelsProcessor struct{}

func (channelsProcessor) Name() string { return "channels" }

func (channelsProcessor) Process(_ context.Context, s *graph.Session) error {
	for _, pixels := range s.ListByTag(domain.TagPixels) {
		sizeC, ok := domain.IntField(pixels.Object(), "sizeC")
		if !ok {
			continue
		}
		if sizeC < 0 {
			return fmt.Errorf("%s: negative sizeC %d", pixels.Key(), sizeC)
		}
		image := pixels.Identity().Index(0)
		for c := 0; c < sizeC; c++ {
			channel, err := s.GetOrCreate(domain.TagChannel, image, c)
			if err != nil {
				return err
			}
			if _, ok := channel.Object().Get("name"); !ok {
				if err := channel.Object().Set("name", fmt.Sprintf("C%d", c)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
