package icp

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/surfelfusion/logging"
	"go.viam.com/surfelfusion/pointcloud"
	"go.viam.com/surfelfusion/spatialmath"
	"go.viam.com/surfelfusion/utils"
)

// MaxStepTranslation is the largest translation, in cloud units, that a single iteration's
// increment or the accumulated transform may have before the run is declared diverged.
const MaxStepTranslation = 0.2

// Engine runs registrations. It owns the worker pool used for correspondence search, so one
// Engine should be kept per session and closed with it. An Engine is not safe for concurrent Runs.
//
// There is no cancellation: a run is bounded only by Config.MaxIterations and the divergence guards.
type Engine struct {
	logger logging.Logger
	pool   *utils.WorkerPool
}

// NewEngine returns an engine with a pool of threadCount workers.
func NewEngine(threadCount int, logger logging.Logger) *Engine {
	return &Engine{logger: logger, pool: utils.NewWorkerPool(threadCount)}
}

// ThreadCount returns the size of the engine's worker pool.
func (e *Engine) ThreadCount() int {
	return e.pool.Size()
}

// Close releases the worker pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// Run aligns source to target. source is copied and never modified; the aligned copy is returned
// in Result.Aligned. If cfg.ThreadCount differs from the current pool size the pool is rebuilt
// before the run. onIteration may be nil.
//
// An empty source or target is not an error: the result is a converged identity with zero error.
func (e *Engine) Run(cfg Config, source []r3.Vector, target *pointcloud.IndexedCloud, onIteration IterationFunc) Result {
	working := append([]r3.Vector(nil), source...)
	if len(working) == 0 || target.Size() == 0 {
		return Result{
			Succeeded:       true,
			State:           Converged,
			SourceTransform: spatialmath.NewIdentity(),
			Aligned:         working,
		}
	}
	if cfg.ThreadCount > 0 && cfg.ThreadCount != e.pool.Size() {
		e.pool.Close()
		e.pool = utils.NewWorkerPool(cfg.ThreadCount)
	}

	var diagnostics *Diagnostics
	if cfg.CollectDiagnostics {
		diagnostics = &Diagnostics{}
	}
	s := newSolver(e.pool, target, len(working), cfg.OutlierDeviationsThreshold)
	maxStepSq := MaxStepTranslation * MaxStepTranslation

	state := Running
	cumulative := spatialmath.NewIdentity()
	rms := math.NaN()
	iteration := 0
	for state == Running {
		iteration++
		mse, err := s.correspond(working)
		if err != nil {
			e.logger.Debugw("correspondence search failed", "iteration", iteration, "error", err)
			state = Failed
			break
		}
		previousRMS := rms
		if iteration == 1 {
			previousRMS = math.Sqrt(mse)
			rms = previousRMS
		}
		s.computeWeights(mse)

		increment, err := s.align(working)
		if err != nil || !increment.IsFinite() || increment.Translation().Norm2() > maxStepSq {
			state = Diverged
			e.logger.Debugw("icp step diverged", "iteration", iteration, "error", err,
				"step", increment.Translation().Norm())
		} else {
			for i, p := range working {
				working[i] = increment.TransformPoint(p)
			}
			rms = s.rms(working)
			converged := rms == 0 || math.Abs(previousRMS-rms)/rms <= cfg.Tolerance

			cumulative = increment.Mul(cumulative)
			switch {
			case cumulative.Translation().Norm2() > maxStepSq:
				state = Diverged
				e.logger.Debugw("icp accumulated transform diverged", "iteration", iteration,
					"translation", cumulative.Translation().Norm())
			case converged || iteration >= cfg.MaxIterations:
				state = Converged
			}
		}

		if diagnostics != nil {
			diagnostics.Iterations = append(diagnostics.Iterations, IterationDiagnostics{
				Source:          append([]r3.Vector(nil), working...),
				Correspondences: append([]int(nil), s.correspondences...),
				Weights:         append([]float64(nil), s.weights...),
				Increment:       increment,
				RMS:             rms,
			})
		}
		if onIteration != nil {
			onIteration(Result{
				Succeeded:              state == Converged,
				State:                  state,
				SourceTransform:        cumulative,
				RMSCorrespondenceError: rms,
				IterationCount:         iteration,
				Diagnostics:            diagnostics,
			})
		}
	}

	if !utils.IsFinite(rms) || !cumulative.IsFinite() {
		state = Failed
		e.logger.Debugw("icp produced a non-finite result", "rms", rms, "iterations", iteration)
	}
	return Result{
		Succeeded:              state == Converged,
		State:                  state,
		SourceTransform:        cumulative,
		RMSCorrespondenceError: rms,
		IterationCount:         iteration,
		Aligned:                working,
		Diagnostics:            diagnostics,
	}
}
