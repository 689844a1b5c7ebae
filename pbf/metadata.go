package pbf

import (
	"time"

	"go.viam.com/surfelfusion/spatialmath"
)

// RejectReason says why a frame was not merged.
type RejectReason int

const (
	// NotRejected is the reason of a merged frame.
	NotRejected RejectReason = iota
	// RejectInvalidFrame means the frame was missing its raw or processed values.
	RejectInvalidFrame
	// RejectICPNotConverged means registration diverged or failed.
	RejectICPNotConverged
	// RejectInvalidTiming means the timestamp did not advance, so no velocity could be computed.
	RejectInvalidTiming
	// RejectAngularVelocity means the implied rotation was too fast.
	RejectAngularVelocity
	// RejectLinearVelocity means the implied translation was too fast.
	RejectLinearVelocity
	// RejectFusionFailed means the pose was adopted but the frame could not be fused.
	RejectFusionFailed
)

func (r RejectReason) String() string {
	switch r {
	case NotRejected:
		return "none"
	case RejectInvalidFrame:
		return "invalid frame"
	case RejectICPNotConverged:
		return "icp did not converge"
	case RejectInvalidTiming:
		return "invalid timing"
	case RejectAngularVelocity:
		return "angular velocity too high"
	case RejectLinearVelocity:
		return "linear velocity too high"
	case RejectFusionFailed:
		return "fusion failed"
	}
	return "unknown"
}

// FrameMetadata records the outcome of one Assimilate call. Records are never modified once
// appended to a Controller's history.
type FrameMetadata struct {
	// ViewMatrix maps world points into the camera frame of the adopted pose after this frame.
	ViewMatrix       spatialmath.Transform
	ProjectionMatrix spatialmath.Transform
	Timestamp        float64
	IsMerged         bool
	// SurfelCount is the size of the surfel map after this frame.
	SurfelCount         int
	CorrespondenceError float64
	// ICPUnusedIterationFraction is 1 - iterations/max iterations for accepted frames, 1 for a
	// frame that needed no registration and 0 for a rejected frame.
	ICPUnusedIterationFraction float64
	ICPIterationCount          int
	RejectReason               RejectReason
	ProcessingDuration         time.Duration
}
