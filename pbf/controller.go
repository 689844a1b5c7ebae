// Package pbf assimilates a stream of depth+color frames into a surfel map while tracking the
// camera: each frame is registered against a reference cloud sampled from the map, the implied
// camera motion is checked for plausibility, and accepted frames are fused into the map.
package pbf

import (
	"math"
	"math/rand"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/surfelfusion/icp"
	"go.viam.com/surfelfusion/landmarks"
	"go.viam.com/surfelfusion/logging"
	"go.viam.com/surfelfusion/pointcloud"
	"go.viam.com/surfelfusion/rimage"
	"go.viam.com/surfelfusion/spatialmath"
	"go.viam.com/surfelfusion/surfel"
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to measure per-frame processing time.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

// WithRenderer sets the renderer used to find existing surfels in a frame. The default is a
// surfel.PointRenderer.
func WithRenderer(r surfel.IndexMapRenderer) Option {
	return func(ctrl *Controller) {
		ctrl.renderer = r
	}
}

// WithThreadCount sets the initial size of the registration worker pool. A different
// icp.Config.ThreadCount passed to Assimilate resizes it.
func WithThreadCount(n int) Option {
	return func(ctrl *Controller) {
		ctrl.threadCount = n
	}
}

// Controller owns the state of one capture session: the surfel map, the adopted camera pose, the
// reference cloud, the landmark index and the per-frame history. Frames must be assimilated in
// order from a single goroutine; a Controller is not safe for concurrent use.
type Controller struct {
	logger      logging.Logger
	clock       clock.Clock
	renderer    surfel.IndexMapRenderer
	threadCount int

	icp    *icp.Engine
	fusion *surfel.FusionEngine

	sessionID uuid.UUID
	rng       *rand.Rand
	surfels   surfel.Surfels
	// extrinsic maps camera points into the world.
	extrinsic     spatialmath.Transform
	lastTimestamp float64
	reference     *pointcloud.IndexedCloud
	landmarks     *landmarks.SparseIndex
	history       []FrameMetadata
}

// NewController returns a controller for a new session seeded with seed. It must be closed with
// Close.
func NewController(logger logging.Logger, seed int64, opts ...Option) *Controller {
	ctrl := &Controller{
		logger:      logger,
		clock:       clock.New(),
		threadCount: icp.DefaultConfig().ThreadCount,
		landmarks:   landmarks.NewSparseIndex(),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	if ctrl.renderer == nil {
		ctrl.renderer = surfel.NewPointRenderer()
	}
	ctrl.icp = icp.NewEngine(ctrl.threadCount, logger.Sublogger("icp"))
	ctrl.fusion = surfel.NewFusionEngine(ctrl.renderer, logger.Sublogger("fusion"))
	ctrl.Reset(seed)
	return ctrl
}

// Reset discards the session's surfels, history, reference cloud and landmark hits, returns the
// pose to identity and reseeds the RNG. A new session ID is assigned.
func (c *Controller) Reset(seed int64) {
	c.sessionID = uuid.New()
	c.rng = rand.New(rand.NewSource(seed)) //nolint:gosec
	c.surfels = nil
	c.extrinsic = spatialmath.NewIdentity()
	c.lastTimestamp = 0
	c.reference = nil
	c.landmarks.RemoveAllHits()
	c.history = nil
	c.logger.Debugw("session reset", "session", c.sessionID.String(), "seed", seed)
}

// Close releases the registration worker pool.
func (c *Controller) Close() {
	c.icp.Close()
}

// SessionID identifies the current session in logs.
func (c *Controller) SessionID() uuid.UUID {
	return c.sessionID
}

// Surfels returns a copy of the surfel map.
func (c *Controller) Surfels() surfel.Surfels {
	return c.surfels.Clone()
}

// Extrinsic returns the adopted camera pose, mapping camera points into the world.
func (c *Controller) Extrinsic() spatialmath.Transform {
	return c.extrinsic
}

// LandmarkIndex returns the session's landmark index. It is renumbered whenever surfels are culled.
func (c *Controller) LandmarkIndex() *landmarks.SparseIndex {
	return c.landmarks
}

// History returns a copy of the metadata of every frame assimilated since the last reset.
func (c *Controller) History() []FrameMetadata {
	return append([]FrameMetadata(nil), c.history...)
}

// Assimilate registers frame against the surfel map and, if the implied camera motion is plausible,
// adopts the new pose and fuses the frame. The first frame of a session is fused at the current
// pose without registration. timestamp is in seconds. Failures never end the session; they are
// reported through the returned metadata, which is also appended to the history.
func (c *Controller) Assimilate(
	frame *rimage.Frame,
	pbfCfg Config,
	icpCfg icp.Config,
	fusionCfg surfel.Config,
	timestamp float64,
	marks []landmarks.Landmark,
) (md FrameMetadata) {
	start := c.clock.Now()
	md.Timestamp = timestamp
	defer func() {
		md.ProcessingDuration = c.clock.Since(start)
		c.history = append(c.history, md)
	}()

	if err := frame.CheckValid(); err != nil {
		c.logger.Warnw("invalid frame", "timestamp", timestamp, "error", err)
		c.reject(&md, RejectInvalidFrame)
		return md
	}
	md.ProjectionMatrix = frame.Raw.Intrinsics.ProjectionMatrix()

	if len(c.surfels) == 0 {
		md.ICPUnusedIterationFraction = 1
	} else {
		result, err := c.register(frame.Processed, pbfCfg, icpCfg, fusionCfg)
		if err != nil {
			c.logger.Warnw("cannot build reference cloud", "error", err)
			c.reject(&md, RejectICPNotConverged)
			return md
		}
		md.CorrespondenceError = result.RMSCorrespondenceError
		md.ICPIterationCount = result.IterationCount

		candidate := result.SourceTransform.Mul(c.extrinsic)
		if reason := c.validate(result, candidate, timestamp, pbfCfg); reason != NotRejected {
			c.reject(&md, reason)
			return md
		}
		c.extrinsic = candidate
		if icpCfg.MaxIterations > 0 {
			md.ICPUnusedIterationFraction = 1 - float64(result.IterationCount)/float64(icpCfg.MaxIterations)
		}
	}
	c.lastTimestamp = timestamp

	md.ViewMatrix = c.viewMatrix()
	if _, err := c.fusion.DoFusion(fusionCfg, frame, &c.surfels, c.extrinsic, marks, c.landmarks); err != nil {
		c.logger.Warnw("frame not fused", "timestamp", timestamp, "error", err)
		md.RejectReason = RejectFusionFailed
	} else {
		md.IsMerged = true
	}
	md.SurfelCount = len(c.surfels)
	c.logger.Debugw("frame assimilated",
		"timestamp", timestamp,
		"merged", md.IsMerged,
		"surfels", md.SurfelCount,
		"icp_iterations", md.ICPIterationCount,
		"correspondence_error", md.CorrespondenceError)
	return md
}

// register rebuilds the reference cloud if it is due and aligns a sample of frame to it.
func (c *Controller) register(
	frame *rimage.ProcessedFrame,
	pbfCfg Config,
	icpCfg icp.Config,
	fusionCfg surfel.Config,
) (icp.Result, error) {
	if c.reference == nil || c.reference.Size() == 0 || shouldRebuildReference(len(c.history), pbfCfg.KdTreeRebuildInterval) {
		reference, err := buildReference(c.surfels, pbfCfg.MaxReferencePoints, c.rng)
		if err != nil {
			return icp.Result{}, errors.Wrap(err, "cannot index surfels")
		}
		c.reference = reference
		c.logger.Debugw("rebuilt reference cloud", "points", reference.Size(), "surfels", len(c.surfels))
	}
	working := sampleWorkingCloud(frame, c.extrinsic, pbfCfg.IcpDownsampleFraction, fusionCfg.MinDepth, fusionCfg.MaxDepth, c.rng)
	return c.icp.Run(icpCfg, working, c.reference, nil), nil
}

// validate checks the motion from the adopted pose to candidate against the configured limits.
func (c *Controller) validate(result icp.Result, candidate spatialmath.Transform, timestamp float64, cfg Config) RejectReason {
	if !result.Succeeded {
		return RejectICPNotConverged
	}
	dt := timestamp - c.lastTimestamp
	angular := spatialmath.AngularSpeed(c.extrinsic, candidate, dt)
	linear := spatialmath.LinearSpeed(c.extrinsic, candidate, dt)
	switch {
	case math.IsNaN(angular) || math.IsNaN(linear):
		return RejectInvalidTiming
	case angular > cfg.MaxCameraAngularVelocity:
		return RejectAngularVelocity
	case linear > cfg.MaxCameraVelocity:
		return RejectLinearVelocity
	}
	return NotRejected
}

func (c *Controller) reject(md *FrameMetadata, reason RejectReason) {
	md.RejectReason = reason
	md.IsMerged = false
	md.ICPUnusedIterationFraction = 0
	md.ViewMatrix = c.viewMatrix()
	md.SurfelCount = len(c.surfels)
	c.logger.Infow("frame rejected", "timestamp", md.Timestamp, "reason", reason.String())
}

func (c *Controller) viewMatrix() spatialmath.Transform {
	view, err := c.extrinsic.Inverse()
	if err != nil {
		return c.extrinsic.RigidInverse()
	}
	return view
}

// FinishAssimilating ends the capture. When the session is long enough for every surfel to have
// had a chance to be re-observed, surfels with weight below fusionCfg.MinCount are culled regardless
// of lifetime and the landmark index renumbered. It returns statistics over the frame history.
func (c *Controller) FinishAssimilating(fusionCfg surfel.Config) SessionStatistics {
	if len(c.history) >= 2*fusionCfg.SurfelLifetime {
		c.fusion.Finish(fusionCfg, &c.surfels, c.landmarks)
		c.reference = nil
	}
	statistics := computeStatistics(c.history, len(c.surfels))
	c.logger.Infow("session finished",
		"session", c.sessionID.String(),
		"frames", statistics.FrameCount,
		"merged", statistics.MergedFrameCount,
		"surfels", statistics.SurfelCount,
		"framerate", statistics.MeanFramerate)
	return statistics
}
