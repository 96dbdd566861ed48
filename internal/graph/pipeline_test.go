package graph

import (
	"context"
	"errors"
	"testing"

	"omegraph/pkg/domain"
)

type funcProcessor struct {
	name  string
	stage Stage
	fn    func(context.Context, *Session) error
}

func (p funcProcessor) Name() string { return p.name }
func (p funcProcessor) Stage() Stage { return p.stage }
func (p funcProcessor) Process(ctx context.Context, s *Session) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, s)
}

func finalizeProcessor() funcProcessor {
	return funcProcessor{name: "finalize", stage: StageFinalize, fn: func(_ context.Context, s *Session) error {
		payload, err := s.ResolveReferences()
		if err != nil {
			return err
		}
		s.SetPayload(payload)
		return nil
	}}
}

func TestReferenceDeduplication(t *testing.T) {
	s := NewSession()
	src := domain.Positional(domain.TagImage, 0)
	if !s.AddReference(src, "Instrument:0") {
		t.Fatalf("first add should report a new edge")
	}
	for i := 0; i < 5; i++ {
		if s.AddReference(src, "Instrument:0") {
			t.Fatalf("duplicate add reported as new")
		}
	}
	s.AddReference(src, "Experimenter:0")
	if got := s.References().From(src); len(got) != 2 || got[0] != "Instrument:0" || got[1] != "Experimenter:0" {
		t.Fatalf("unexpected targets: %v", got)
	}
	if !s.References().Has(src, "Instrument:0") || s.References().Has(src, "Instrument:1") {
		t.Fatalf("Has mismatch")
	}
	if s.References().Len() != 2 || len(s.References().Sources()) != 1 {
		t.Fatalf("expected one source with two edges")
	}
}

func TestCountReferencesByTag(t *testing.T) {
	s := NewSession()
	img := mustCreate(t, s, domain.TagImage, 0)
	inst := mustCreate(t, s, domain.TagInstrument, 0)
	if err := s.AssignSymbol(inst, "Instrument:0"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.AssignSymbol(img, "Image:0"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	s.AddReference(img.Identity(), "Instrument:0")
	s.AddReference(domain.SymbolIdentity("Image:0"), "Experimenter:missing")
	if got := s.CountReferences(domain.TagImage, domain.TagInstrument); got != 1 {
		t.Fatalf("expected 1 Image->Instrument edge, got %d", got)
	}
	if got := s.CountReferences(domain.TagImage, AnyTag); got != 2 {
		t.Fatalf("expected 2 edges from images, got %d", got)
	}
	if got := s.CountReferences(AnyTag, domain.TagExperimenter); got != 0 {
		t.Fatalf("unresolved target must only match the wildcard, got %d", got)
	}
}

func TestResolveReferencesPayload(t *testing.T) {
	s := NewSession()
	inst := mustCreate(t, s, domain.TagInstrument, 0)
	det := mustCreate(t, s, domain.TagDetector, 0, 1)
	img1 := mustCreate(t, s, domain.TagImage, 1)
	img0 := mustCreate(t, s, domain.TagImage, 0)
	for c, sym := range map[*Container]domain.Symbol{inst: "Instrument:0", det: "Detector:0:1", img0: "urn:img0"} {
		if err := s.AssignSymbol(c, sym); err != nil {
			t.Fatalf("assign %s: %v", sym, err)
		}
	}
	// forward reference declared before the target gets its symbol
	s.AddReference(img1.Identity(), "Detector:0:1")
	s.AddReference(img1.Identity(), "Instrument:0")
	s.AddReference(domain.SymbolIdentity("urn:img0"), "Instrument:0")
	s.AddReference(img0.Identity(), "Instrument:0")

	payload, err := s.ResolveReferences()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := payload.Keys(); len(got) != 2 || got[0] != "Image:0" || got[1] != "Image:1" {
		t.Fatalf("unexpected payload keys: %v", got)
	}
	targets, ok := payload.Targets("Image:0")
	if !ok || len(targets) != 1 || targets[0] != "Instrument:0" {
		t.Fatalf("symbol and positional sources must merge: %v", targets)
	}
	targets, _ = payload.Targets("Image:1")
	if len(targets) != 2 || targets[0] != "Instrument:0" || targets[1] != "Detector:0:1" {
		t.Fatalf("targets must follow comparator order: %v", targets)
	}
	if payload.Edges() != 3 {
		t.Fatalf("expected 3 edges, got %d", payload.Edges())
	}
}

func TestResolveReferencesErrors(t *testing.T) {
	s := NewSession()
	img := mustCreate(t, s, domain.TagImage, 0)
	s.AddReference(img.Identity(), "Instrument:9")
	_, err := s.ResolveReferences()
	var unresolved *domain.UnresolvedSymbolError
	if !errors.As(err, &unresolved) || unresolved.Target != "Instrument:9" || unresolved.Source != "Image:0" {
		t.Fatalf("expected UnresolvedSymbolError, got %v", err)
	}

	s = NewSession()
	a := mustCreate(t, s, domain.TagImage, 0)
	b := mustCreate(t, s, domain.TagPlate, 0)
	_ = s.AssignSymbol(a, "shared")
	_ = s.AssignSymbol(b, "shared")
	roi := mustCreate(t, s, domain.TagROI, 0)
	s.AddReference(roi.Identity(), "shared")
	_, err = s.ResolveReferences()
	var ambiguous *domain.AmbiguousSymbolError
	if !errors.As(err, &ambiguous) || len(ambiguous.Candidates) != 2 {
		t.Fatalf("expected AmbiguousSymbolError, got %v", err)
	}
}

func TestResolveReferencesRejectsUnregisteredSource(t *testing.T) {
	s := NewSession()
	inst := mustCreate(t, s, domain.TagInstrument, 0)
	if err := s.AssignSymbol(inst, "I0"); err != nil {
		t.Fatalf("AssignSymbol: %v", err)
	}
	s.AddReference(domain.Positional(domain.TagImage, 7), "I0")
	payload, err := s.ResolveReferences()
	var unknown *domain.UnknownSourceError
	if !errors.As(err, &unknown) || unknown.Source != "Image:7" {
		t.Fatalf("expected UnknownSourceError for Image:7, got %v", err)
	}
	if len(payload.Entries) != 0 || s.Len() != 1 {
		t.Fatalf("failed resolution must not produce entries or containers: %+v, %d", payload, s.Len())
	}
}

func TestValidatePipeline(t *testing.T) {
	model := funcProcessor{name: "model"}
	targets := funcProcessor{name: "targets", stage: StageTargets}
	final := funcProcessor{name: "final", stage: StageFinalize}
	tests := []struct {
		name  string
		procs []Processor
		ok    bool
	}{
		{"empty", nil, true},
		{"model only", []Processor{model, model}, true},
		{"documented order", []Processor{model, targets, final}, true},
		{"finalizer alone", []Processor{model, final}, true},
		{"finalize before targets", []Processor{model, final, targets}, false},
		{"targets without finalizer", []Processor{model, targets}, false},
		{"model after finalizer", []Processor{targets, final, model}, false},
		{"nil processor", []Processor{nil}, false},
		{"two finalizers", []Processor{final, final}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePipeline(tc.procs)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrPipelineOrder) {
				t.Fatalf("expected ErrPipelineOrder, got %v", err)
			}
		})
	}
}

func TestRunPipelineOrderAndAbort(t *testing.T) {
	s := NewSession()
	var ran []string
	record := func(name string) funcProcessor {
		return funcProcessor{name: name, fn: func(context.Context, *Session) error {
			ran = append(ran, name)
			return nil
		}}
	}
	if err := s.RunPipeline(context.Background(), record("a"), record("b"), finalizeProcessor()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(ran) != 2 || ran[0] != "a" || ran[1] != "b" {
		t.Fatalf("unexpected run order: %v", ran)
	}
	if _, ok := s.Payload(); !ok {
		t.Fatalf("expected payload after finalizer")
	}

	ran = nil
	boom := errors.New("boom")
	failing := funcProcessor{name: "fail", fn: func(context.Context, *Session) error { return boom }}
	err := s.RunPipeline(context.Background(), record("a"), failing, record("c"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped processor error, got %v", err)
	}
	if len(ran) != 1 {
		t.Fatalf("processors after a failure must not run: %v", ran)
	}
	if err := s.RunPipeline(context.Background(), finalizeProcessor(), record("late")); !errors.Is(err, ErrPipelineOrder) {
		t.Fatalf("expected order validation before running, got %v", err)
	}
}
