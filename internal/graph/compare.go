package graph

import (
	"sort"
	"strings"

	"omegraph/pkg/domain"
)

// LevelPolicy assigns a hierarchy level to an identity.
type LevelPolicy func(domain.Identity) int

// Level of a symbolic identity under every policy. Symbols always sort ahead
// of positional identities.
const symbolLevel = 0

// Level of settings-like tags under HierarchyLevels. Their index arity does
// not reflect their place in the containment model.
const settingsLevel = 3

// HierarchyLevels puts root tags at level 1, settings tags at level 3 and
// every other tag at its index length. Flattened output matches the batch
// content produced by existing stores.
func HierarchyLevels(id domain.Identity) int {
	if !id.IsPositional() {
		return symbolLevel
	}
	switch {
	case domain.IsRootTag(id.Tag()):
		return 1
	case domain.IsSettingsTag(id.Tag()):
		return settingsLevel
	default:
		return id.Len()
	}
}

// LengthLevels uses the index length as the level for every tag.
func LengthLevels(id domain.Identity) int {
	if !id.IsPositional() {
		return symbolLevel
	}
	return id.Len()
}

// Comparator orders identities by hierarchy level, then canonical string
// across tags, then element-wise index within a tag. The zero value uses
// HierarchyLevels.
//
// The ordering is a strict weak ordering as long as no tag contains ':'.
// Sessions refuse to create containers for such tags.
type Comparator struct {
	Levels LevelPolicy
}

func (c Comparator) level(id domain.Identity) int {
	if c.Levels == nil {
		return HierarchyLevels(id)
	}
	return c.Levels(id)
}

// Compare returns a negative number when a sorts before b, zero when they are
// equal and a positive number otherwise.
func (c Comparator) Compare(a, b domain.Identity) int {
	if a.Equal(b) {
		return 0
	}
	if la, lb := c.level(a), c.level(b); la != lb {
		if la < lb {
			return -1
		}
		return 1
	}
	if !a.IsPositional() || !b.IsPositional() || a.Tag() != b.Tag() {
		return strings.Compare(a.String(), b.String())
	}
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	for i := 0; i < n; i++ {
		if d := a.Index(i) - b.Index(i); d != 0 {
			if d < 0 {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a.String(), b.String())
}

// Less reports whether a sorts strictly before b.
func (c Comparator) Less(a, b domain.Identity) bool {
	return c.Compare(a, b) < 0
}

// Sort orders containers in place. The sort is stable so repeated calls over
// the same set produce the same sequence.
func (c Comparator) Sort(containers []*Container) {
	sort.SliceStable(containers, func(i, j int) bool {
		return c.Compare(containers[i].id, containers[j].id) < 0
	})
}

// SortIdentities orders identities in place.
func (c Comparator) SortIdentities(ids []domain.Identity) {
	sort.SliceStable(ids, func(i, j int) bool {
		return c.Compare(ids[i], ids[j]) < 0
	})
}

// ComparatorFor maps a configured policy name onto a comparator. Unknown
// names report false.
func ComparatorFor(name string) (Comparator, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hierarchy":
		return Comparator{Levels: HierarchyLevels}, true
	case "length":
		return Comparator{Levels: LengthLevels}, true
	default:
		return Comparator{}, false
	}
}
