package pbf

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"go.viam.com/surfelfusion/pointcloud"
	"go.viam.com/surfelfusion/rimage"
	"go.viam.com/surfelfusion/spatialmath"
	"go.viam.com/surfelfusion/surfel"
	"go.viam.com/surfelfusion/utils"
)

// warmupFrames is the frame count below which the reference cloud is rebuilt every half interval.
const warmupFrames = 20

// shouldRebuildReference reports whether the reference cloud is due for a rebuild when frameCount
// frames have been assimilated so far.
func shouldRebuildReference(frameCount, interval int) bool {
	if interval < 1 {
		interval = 1
	}
	half := interval / 2
	if half < 1 {
		half = 1
	}
	switch {
	case frameCount < half:
		return true
	case frameCount < warmupFrames:
		return frameCount%half == 0
	default:
		return frameCount%interval == 0
	}
}

// buildReference subsamples the surfel map into an indexed cloud, taking one surfel per bucket.
func buildReference(surfels surfel.Surfels, maxPoints int, rng *rand.Rand) (*pointcloud.IndexedCloud, error) {
	picked := pointcloud.BucketSample(len(surfels), maxPoints, rng)
	cloud := &pointcloud.Cloud{
		Positions: make([]r3.Vector, len(picked)),
		Normals:   make([]r3.Vector, len(picked)),
	}
	for i, idx := range picked {
		cloud.Positions[i] = surfels[idx].Position
		cloud.Normals[i] = surfels[idx].Normal
	}
	return pointcloud.NewIndexedCloud(cloud)
}

// sampleWorkingCloud picks the points of a frame used for registration and moves them into the
// world with extrinsic. Every pixel with a finite position draws two numbers from rng, in raster
// order: the first is accepted with probability min(1, 4*fraction), the second with the pixel's
// weight. Accepted points must also lie within [minDepth, maxDepth].
func sampleWorkingCloud(
	frame *rimage.ProcessedFrame,
	extrinsic spatialmath.Transform,
	fraction, minDepth, maxDepth float64,
	rng *rand.Rand,
) []r3.Vector {
	// compensates for the second draw rejecting most low weight points
	acceptFraction := math.Min(1, 4*fraction)
	ret := make([]r3.Vector, 0, int(float64(len(frame.Positions))*acceptFraction))
	for i, p := range frame.Positions {
		if !utils.IsFiniteVector(p) {
			continue
		}
		fractionDraw := rng.Float64()
		weightDraw := rng.Float64()
		if fractionDraw >= acceptFraction || weightDraw >= frame.Weights[i] {
			continue
		}
		if !(p.Z >= minDepth && p.Z <= maxDepth) {
			continue
		}
		ret = append(ret, extrinsic.TransformPoint(p))
	}
	return ret
}
