package icp

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/surfelfusion/pointcloud"
	"go.viam.com/surfelfusion/spatialmath"
	"go.viam.com/surfelfusion/utils"
)

// ErrDegenerateSystem is returned when the alignment normal equations cannot be solved, e.g.
// because every pair was rejected as an outlier.
var ErrDegenerateSystem = errors.New("degenerate point-to-plane system")

// dampingFactor scales the diagonal damping, relative to the mean diagonal, added before the
// Cholesky solve.
const dampingFactor = 1e-6

// solver holds the per-run buffers for correspondence search and the point-to-plane solve.
// The worker pool and target are borrowed from the engine for the duration of a run.
type solver struct {
	pool      *utils.WorkerPool
	target    *pointcloud.IndexedCloud
	threshold float64

	correspondences []int
	distSq          []float64
	weights         []float64
	partialSums     []float64
}

func newSolver(pool *utils.WorkerPool, target *pointcloud.IndexedCloud, numSource int, outlierThreshold float64) *solver {
	return &solver{
		pool:            pool,
		target:          target,
		threshold:       outlierThreshold,
		correspondences: make([]int, numSource),
		distSq:          make([]float64, numSource),
		weights:         make([]float64, numSource),
		partialSums:     make([]float64, pool.Size()),
	}
}

// correspond finds the closest target point of every source point and returns the mean squared
// distance. Workers each handle a contiguous range and write their own partial sum; the reduction
// happens here after the pool's barrier.
func (s *solver) correspond(source []r3.Vector) (float64, error) {
	for i := range s.partialSums {
		s.partialSums[i] = 0
	}
	index := s.target.Index()
	err := s.pool.Run(len(source), func(workerNum, from, to int) {
		sum := 0.
		for i := from; i < to; i++ {
			closest, distSq, _ := index.Closest(source[i])
			s.correspondences[i] = closest
			s.distSq[i] = distSq
			sum += distSq
		}
		s.partialSums[workerNum] = sum
	})
	if err != nil {
		return math.NaN(), errors.Wrap(err, "correspondence search failed")
	}
	total := 0.
	for _, partial := range s.partialSums {
		total += partial
	}
	return total / float64(len(source)), nil
}

// computeWeights gives each pair weight 1 when its squared error normalized by mse is within the
// squared threshold, and 0 otherwise.
func (s *solver) computeWeights(mse float64) {
	maxNormalized := s.threshold * s.threshold
	for i, d := range s.distSq {
		if mse == 0 || d/mse <= maxNormalized {
			s.weights[i] = 1
		} else {
			s.weights[i] = 0
		}
	}
}

// align solves the linearized point-to-plane problem for the current correspondences and weights.
// The unknowns are three small rotation angles followed by a translation.
func (s *solver) align(source []r3.Vector) (spatialmath.Transform, error) {
	var ata [36]float64
	var atb [6]float64
	var a [6]float64
	totalWeight := 0.
	for i, p := range source {
		w := s.weights[i]
		if w == 0 {
			continue
		}
		q := s.target.Position(s.correspondences[i])
		n := s.target.Normal(s.correspondences[i])
		c := p.Cross(n)
		a = [6]float64{c.X, c.Y, c.Z, n.X, n.Y, n.Z}
		residual := q.Sub(p).Dot(n)
		for r := 0; r < 6; r++ {
			wa := w * a[r]
			for col := r; col < 6; col++ {
				ata[r*6+col] += wa * a[col]
			}
			atb[r] += wa * residual
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return nanTransform(), ErrDegenerateSystem
	}

	trace := 0.
	for r := 0; r < 6; r++ {
		trace += ata[r*6+r]
		for col := r + 1; col < 6; col++ {
			ata[col*6+r] = ata[r*6+col]
		}
	}
	if !(trace > 0) || !utils.IsFinite(trace) {
		return nanTransform(), ErrDegenerateSystem
	}
	// Directions the geometry does not constrain (sliding along a plane) get a zero update.
	damping := dampingFactor * trace / 6
	for r := 0; r < 6; r++ {
		ata[r*6+r] += damping
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(6, ata[:])); !ok {
		return nanTransform(), ErrDegenerateSystem
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(6, atb[:])); err != nil {
		return nanTransform(), errors.Wrap(ErrDegenerateSystem, err.Error())
	}
	return spatialmath.NewRotationTranslation(
		x.AtVec(0), x.AtVec(1), x.AtVec(2),
		r3.Vector{X: x.AtVec(3), Y: x.AtVec(4), Z: x.AtVec(5)},
	), nil
}

// rms returns the root mean squared distance between source and the current correspondences.
func (s *solver) rms(source []r3.Vector) float64 {
	if len(source) == 0 {
		return 0
	}
	sum := 0.
	for i, p := range source {
		sum += p.Sub(s.target.Position(s.correspondences[i])).Norm2()
	}
	return math.Sqrt(sum / float64(len(source)))
}

func nanTransform() spatialmath.Transform {
	var ret spatialmath.Transform
	for i := range ret {
		ret[i] = math.NaN()
	}
	return ret
}
