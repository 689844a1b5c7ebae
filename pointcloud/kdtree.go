package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// indexedPoint is a position that remembers where it sat in the caller's slice, since building
// the tree reorders its input.
type indexedPoint struct {
	r3.Vector
	idx int
}

// Compare implements kdtree.Comparable.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims implements kdtree.Comparable.
func (p indexedPoint) Dims() int { return 3 }

// Distance implements kdtree.Comparable and returns the squared euclidean distance.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	return p.Sub(q.Vector).Norm2()
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p indexedPoints) Pivot(d kdtree.Dim) int {
	plane := pointPlane{indexedPoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// pointPlane sorts points along one dimension for partitioning.
type pointPlane struct {
	indexedPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.indexedPoints[i].X < p.indexedPoints[j].X
	case 1:
		return p.indexedPoints[i].Y < p.indexedPoints[j].Y
	case 2:
		return p.indexedPoints[i].Z < p.indexedPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{indexedPoints: p.indexedPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// KDIndex answers nearest-neighbour queries over a fixed set of positions. The tree is built
// completely by NewKDIndex; afterwards the index is read-only, so any number of goroutines may
// query it concurrently without warm-up.
type KDIndex struct {
	tree *kdtree.Tree
	size int
}

// NewKDIndex builds an index over positions. The positions slice is copied.
func NewKDIndex(positions []r3.Vector) *KDIndex {
	points := make(indexedPoints, len(positions))
	for i, p := range positions {
		points[i] = indexedPoint{Vector: p, idx: i}
	}
	ret := &KDIndex{size: len(points)}
	if len(points) > 0 {
		ret.tree = kdtree.New(points, false)
	}
	return ret
}

// Size returns the number of indexed positions.
func (idx *KDIndex) Size() int {
	return idx.size
}

// Closest returns the index, in the slice the index was built from, of the position nearest to p
// and its squared distance. ok is false for an empty index.
func (idx *KDIndex) Closest(p r3.Vector) (closest int, distSq float64, ok bool) {
	if idx == nil || idx.tree == nil {
		return -1, math.Inf(1), false
	}
	nearest, dist := idx.tree.Nearest(indexedPoint{Vector: p, idx: -1})
	if nearest == nil {
		return -1, math.Inf(1), false
	}
	return nearest.(indexedPoint).idx, dist, true
}
