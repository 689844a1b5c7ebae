// Package surfel maintains the fused surface map: a collection of oriented, confidence-weighted
// discs, and the per-frame fusion of camera samples into it.
package surfel

import (
	"github.com/golang/geo/r3"
)

// Surfel is a small oriented disc approximating a patch of scanned surface. Position and Normal
// are in world coordinates. Color is linear RGB in [0, 1].
type Surfel struct {
	Position r3.Vector
	Normal   r3.Vector
	Color    r3.Vector
	// Weight is the accumulated confidence of every sample merged into the surfel.
	Weight float64
	// Size is the disc radius.
	Size float64
	// Lifetime counts down once per fused frame and is reset whenever a sample merges.
	Lifetime int
}

// Surfels is a surfel map. Indices are only stable until the next cull.
type Surfels []Surfel

// Positions returns the position of every surfel.
func (s Surfels) Positions() []r3.Vector {
	ret := make([]r3.Vector, len(s))
	for i := range s {
		ret[i] = s[i].Position
	}
	return ret
}

// Normals returns the normal of every surfel.
func (s Surfels) Normals() []r3.Vector {
	ret := make([]r3.Vector, len(s))
	for i := range s {
		ret[i] = s[i].Normal
	}
	return ret
}

// Clone returns a copy of the map.
func (s Surfels) Clone() Surfels {
	if s == nil {
		return nil
	}
	return append(Surfels(nil), s...)
}

// compact removes, in place, every surfel remove returns true for, preserving the order of the
// rest. When recordDeleted is set the original indices of the removed surfels are returned in
// ascending order.
func (s *Surfels) compact(remove func(*Surfel) bool, recordDeleted bool) []int {
	var deleted []int
	kept := (*s)[:0]
	for i := range *s {
		if remove(&(*s)[i]) {
			if recordDeleted {
				deleted = append(deleted, i)
			}
			continue
		}
		kept = append(kept, (*s)[i])
	}
	// zero the tail so the backing array does not pin stale surfels
	tail := (*s)[len(kept):]
	for i := range tail {
		tail[i] = Surfel{}
	}
	*s = kept
	return deleted
}
