package graph

import (
	"math/rand"
	"testing"

	"omegraph/pkg/domain"
)

func sampleIdentities() []domain.Identity {
	return []domain.Identity{
		domain.Positional(domain.TagImage, 0),
		domain.Positional(domain.TagImage, 1),
		domain.Positional(domain.TagImage, 10),
		domain.Positional(domain.TagPixels, 0),
		domain.Positional(domain.TagChannel, 0, 1),
		domain.Positional(domain.TagChannel, 0, 2),
		domain.Positional(domain.TagChannel, 0, 10),
		domain.Positional(domain.TagChannel, 1, 0),
		domain.Positional(domain.TagPlane, 0, 3),
		domain.Positional(domain.TagDetector, 0, 0),
		domain.Positional(domain.TagDetectorSettings, 0, 0),
		domain.Positional(domain.TagObjectiveSettings, 0),
		domain.Positional(domain.TagWellSample, 0, 0, 1),
		domain.Positional(domain.TagInstrument, 0),
		domain.Positional(domain.TagPlate, 0),
		domain.Positional(domain.TagWell, 0, 2),
		domain.Positional("Custom", 0),
		domain.Positional("Custom", 0, 1),
		domain.SymbolIdentity("Instrument:0"),
		domain.SymbolIdentity("Detector:0:0"),
	}
}

func TestComparatorLaws(t *testing.T) {
	for _, cmp := range []Comparator{{}, {Levels: LengthLevels}} {
		ids := sampleIdentities()
		for _, a := range ids {
			if got := cmp.Compare(a, a); got != 0 {
				t.Fatalf("compare(%s,%s) = %d, want 0", a, a, got)
			}
			for _, b := range ids {
				ab, ba := cmp.Compare(a, b), cmp.Compare(b, a)
				if ab != -ba {
					t.Fatalf("antisymmetry violated for %s,%s: %d vs %d", a, b, ab, ba)
				}
				for _, c := range ids {
					if ab < 0 && cmp.Compare(b, c) < 0 && cmp.Compare(a, c) >= 0 {
						t.Fatalf("transitivity violated: %s < %s < %s", a, b, c)
					}
				}
			}
		}
	}
}

func TestComparatorSortStable(t *testing.T) {
	s := NewSession()
	for _, id := range sampleIdentities() {
		if !id.IsPositional() {
			continue
		}
		if _, err := s.GetOrCreate(id.Tag(), id.Indices()...); err != nil && domain.Known(id.Tag()) {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	first := keys(s.Flatten())
	shuffled := s.Containers()
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.Comparator().Sort(shuffled)
	second := keys(shuffled)
	if len(first) != len(second) {
		t.Fatalf("length mismatch")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sort not repeatable at %d: %v vs %v", i, first, second)
		}
	}
}

func TestComparatorElementWise(t *testing.T) {
	cmp := Comparator{}
	a := domain.Positional(domain.TagChannel, 0, 1)
	b := domain.Positional(domain.TagChannel, 0, 2)
	if cmp.Compare(a, b) >= 0 {
		t.Fatalf("expected [0,1] before [0,2]")
	}
	if !cmp.Less(domain.Positional(domain.TagImage, 2), domain.Positional(domain.TagImage, 10)) {
		t.Fatalf("indices must compare numerically, not lexically")
	}
}

func TestComparatorLevels(t *testing.T) {
	tests := []struct {
		name   string
		cmp    Comparator
		before domain.Identity
		after  domain.Identity
	}{
		{"symbols first", Comparator{}, domain.SymbolIdentity("zzz"), domain.Positional(domain.TagImage, 0)},
		{"root before children", Comparator{}, domain.Positional(domain.TagInstrument, 3), domain.Positional(domain.TagChannel, 0, 0)},
		{"settings at level three", Comparator{}, domain.Positional(domain.TagChannel, 5, 5), domain.Positional(domain.TagObjectiveSettings, 0)},
		{"same level by canonical string", Comparator{}, domain.Positional(domain.TagChannel, 9, 9), domain.Positional(domain.TagPlane, 0, 0)},
		{"length policy keeps settings shallow", Comparator{Levels: LengthLevels}, domain.Positional(domain.TagObjectiveSettings, 0), domain.Positional(domain.TagChannel, 0, 0)},
		{"prefix falls back to canonical", Comparator{}, domain.Positional(domain.TagImage, 0), domain.Positional(domain.TagImage, 0, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cmp.Compare(tc.before, tc.after); got >= 0 {
				t.Fatalf("compare(%s,%s) = %d, want < 0", tc.before, tc.after, got)
			}
		})
	}
}

func TestComparatorFor(t *testing.T) {
	if _, ok := ComparatorFor("hierarchy"); !ok {
		t.Fatalf("expected hierarchy policy")
	}
	c, ok := ComparatorFor(" Length ")
	if !ok {
		t.Fatalf("expected length policy")
	}
	if c.Compare(domain.Positional(domain.TagObjectiveSettings, 0), domain.Positional(domain.TagChannel, 0, 0)) >= 0 {
		t.Fatalf("length policy not applied")
	}
	if _, ok := ComparatorFor("bogus"); ok {
		t.Fatalf("expected unknown policy to be rejected")
	}
}
