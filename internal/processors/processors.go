// Package processors holds the built-in graph pipeline stages run between
// population and persistence.
package processors

import "omegraph/internal/graph"

// Default returns the built-in pipeline in its required order: model
// processors first, then default target resolution, then reference
// finalisation.
func Default() []graph.Processor {
	return []graph.Processor{
		Channels(),
		Planes(),
		Instruments(),
		Targets(),
		Finalizer(),
	}
}

// Model returns only the model-stage processors of Default.
func Model() []graph.Processor {
	procs := Default()
	return procs[:len(procs)-2]
}
