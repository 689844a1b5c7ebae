package icp

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/surfelfusion/utils"
)

func newTestSolver(t *testing.T, numSource int, threshold float64) *solver {
	t.Helper()
	pool := utils.NewWorkerPool(2)
	t.Cleanup(pool.Close)
	return newSolver(pool, indexed(t, planeGrid(4, 1, 0)), numSource, threshold)
}

func TestCorrespond(t *testing.T) {
	s := newTestSolver(t, 3, 3)
	source := []r3.Vector{{X: 0.1, Y: 0, Z: 0.5}, {X: 2.9, Y: 1.1, Z: 0}, {X: 1, Y: 3, Z: -1}}
	mse, err := s.correspond(source)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mse, test.ShouldAlmostEqual, (0.26+0.02+1)/3)
	for i, p := range source {
		q := s.target.Position(s.correspondences[i])
		test.That(t, s.distSq[i], test.ShouldAlmostEqual, p.Sub(q).Norm2())
	}
	test.That(t, s.target.Position(s.correspondences[1]), test.ShouldResemble, r3.Vector{X: 3, Y: 1})
}

func TestComputeWeights(t *testing.T) {
	s := newTestSolver(t, 4, 1)
	copy(s.distSq, []float64{1, 1, 1, 100})
	s.computeWeights(25.75)
	test.That(t, s.weights, test.ShouldResemble, []float64{1, 1, 1, 0})

	copy(s.distSq, []float64{0, 0, 0, 0})
	s.computeWeights(0)
	test.That(t, s.weights, test.ShouldResemble, []float64{1, 1, 1, 1})
}

func TestAlignDegenerate(t *testing.T) {
	s := newTestSolver(t, 2, 1)
	source := []r3.Vector{{X: 1, Z: 0.1}, {X: 2, Z: 0.1}}
	_, err := s.correspond(source)
	test.That(t, err, test.ShouldBeNil)
	// every pair rejected
	s.weights[0], s.weights[1] = 0, 0

	increment, err := s.align(source)
	test.That(t, errors.Is(err, ErrDegenerateSystem), test.ShouldBeTrue)
	test.That(t, increment.IsFinite(), test.ShouldBeFalse)
}

func TestAlignPlaneOffset(t *testing.T) {
	s := newTestSolver(t, 16, 3)
	source := shifted(planeGrid(4, 1, 0).Positions, r3.Vector{Z: 0.1})
	mse, err := s.correspond(source)
	test.That(t, err, test.ShouldBeNil)
	s.computeWeights(mse)

	increment, err := s.align(source)
	test.That(t, err, test.ShouldBeNil)
	// sliding along the plane is unconstrained and gets no update
	translation := increment.Translation()
	test.That(t, translation.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, translation.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, translation.Z, test.ShouldAlmostEqual, -0.1, 1e-5)
	test.That(t, s.rms(source), test.ShouldAlmostEqual, 0.1)
}
