// Package landmarks tracks which surfels screen-space landmarks have been observed on, and keeps
// those associations valid when the surfel collection is compacted.
package landmarks

import (
	"sort"

	"github.com/samber/lo"
)

// Landmark is a feature observed in a frame at normalized image coordinates: X and Y are in [0, 1],
// with (0, 0) the top-left corner of the image.
type Landmark struct {
	ID int
	X  float64
	Y  float64
}

// Pixel maps the landmark's normalized coordinates onto a width x height image, clamping to the
// image bounds.
func (l Landmark) Pixel(width, height int) (x, y int) {
	x = int(l.X * float64(width))
	y = int(l.Y * float64(height))
	return lo.Clamp(x, 0, width-1), lo.Clamp(y, 0, height-1)
}

// Index associates surfel indices with the landmarks seen on them.
type Index interface {
	// AddHit records that landmarkID was observed on surfel surfelIndex.
	AddHit(surfelIndex, landmarkID int)
	// DeleteSurfelLandmarksAndRenumber forgets the given surfel indices, which refer to positions
	// before the deletion, and shifts every surviving index down by the number of deleted indices
	// below it.
	DeleteSurfelLandmarksAndRenumber(deleted []int)
	// Size returns the number of surfels with at least one hit.
	Size() int
	// RemoveAllHits clears the index.
	RemoveAllHits()
}

// SparseIndex is an Index storing hit counts per surfel and landmark. It is not safe for
// concurrent use.
type SparseIndex struct {
	hits map[int]map[int]int
}

// NewSparseIndex returns an empty SparseIndex.
func NewSparseIndex() *SparseIndex {
	return &SparseIndex{hits: map[int]map[int]int{}}
}

// AddHit implements Index.
func (si *SparseIndex) AddHit(surfelIndex, landmarkID int) {
	perSurfel, ok := si.hits[surfelIndex]
	if !ok {
		perSurfel = map[int]int{}
		si.hits[surfelIndex] = perSurfel
	}
	perSurfel[landmarkID]++
}

// DeleteSurfelLandmarksAndRenumber implements Index.
func (si *SparseIndex) DeleteSurfelLandmarksAndRenumber(deleted []int) {
	if len(deleted) == 0 || len(si.hits) == 0 {
		return
	}
	sorted := append([]int(nil), deleted...)
	sort.Ints(sorted)
	sorted = lo.Uniq(sorted)

	renumbered := make(map[int]map[int]int, len(si.hits))
	for surfelIndex, perSurfel := range si.hits {
		below := sort.SearchInts(sorted, surfelIndex)
		if below < len(sorted) && sorted[below] == surfelIndex {
			continue
		}
		renumbered[surfelIndex-below] = perSurfel
	}
	si.hits = renumbered
}

// Size implements Index.
func (si *SparseIndex) Size() int {
	return len(si.hits)
}

// RemoveAllHits implements Index.
func (si *SparseIndex) RemoveAllHits() {
	si.hits = map[int]map[int]int{}
}

// Hits returns the landmark ids seen on a surfel and how often each was seen.
func (si *SparseIndex) Hits(surfelIndex int) map[int]int {
	return lo.Assign(si.hits[surfelIndex])
}

// SurfelsForLandmark returns, in ascending order, the surfel indices landmarkID has been seen on.
func (si *SparseIndex) SurfelsForLandmark(landmarkID int) []int {
	ret := lo.Filter(lo.Keys(si.hits), func(surfelIndex, _ int) bool {
		_, ok := si.hits[surfelIndex][landmarkID]
		return ok
	})
	sort.Ints(ret)
	return ret
}
