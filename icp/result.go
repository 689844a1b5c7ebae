package icp

import (
	"github.com/golang/geo/r3"

	"go.viam.com/surfelfusion/spatialmath"
)

// State is the state of a registration run.
type State int

const (
	// Running is the state of a run that has not finished.
	Running State = iota
	// Converged means the relative error change fell below tolerance or the iteration cap was hit.
	Converged
	// Diverged means a step or the accumulated transform moved further than the safety limit, or
	// the linear system was degenerate.
	Diverged
	// Failed means the error or transform became NaN/Inf, or correspondence search failed.
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result describes a registration run, or the run so far when passed to an IterationFunc.
type Result struct {
	Succeeded bool
	State     State
	// SourceTransform maps the source cloud onto the target cloud.
	SourceTransform        spatialmath.Transform
	RMSCorrespondenceError float64
	IterationCount         int
	// Aligned is the source cloud with SourceTransform applied. It is owned by the caller and is
	// only set on final results.
	Aligned []r3.Vector
	// Diagnostics is only set when Config.CollectDiagnostics is true.
	Diagnostics *Diagnostics
}

// IterationDiagnostics are copies of one iteration's working data.
type IterationDiagnostics struct {
	Source          []r3.Vector
	Correspondences []int
	Weights         []float64
	Increment       spatialmath.Transform
	RMS             float64
}

// Diagnostics collects IterationDiagnostics for a run.
type Diagnostics struct {
	Iterations []IterationDiagnostics
}

// IterationFunc is called synchronously on the calling goroutine after every iteration.
type IterationFunc func(partial Result)
