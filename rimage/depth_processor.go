package rimage

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/surfelfusion/utils"
)

// DepthProcessor turns a raw capture into per-pixel positions, normals, surfel sizes, weights and
// input confidences in the camera frame. Implementations must preserve the frame's shape.
type DepthProcessor interface {
	ComputeFrameValues(raw *RawFrame, smoothPoints bool) (*ProcessedFrame, error)
}

// DefaultMaxDepthDiscontinuity is the default relative depth jump between neighbouring pixels
// beyond which a pixel is treated as lying on an occlusion edge.
const DefaultMaxDepthDiscontinuity = 0.1

// BasicDepthProcessor unprojects depth with the frame's pinhole intrinsics and estimates normals by
// central differences. Pixels on the image border, pixels without depth and pixels on a depth
// discontinuity get zero confidence and weight.
type BasicDepthProcessor struct {
	// MaxDepthDiscontinuity is the largest allowed |neighbour depth - depth| / depth.
	MaxDepthDiscontinuity float64
}

// NewBasicDepthProcessor returns a processor with the default discontinuity threshold.
func NewBasicDepthProcessor() *BasicDepthProcessor {
	return &BasicDepthProcessor{MaxDepthDiscontinuity: DefaultMaxDepthDiscontinuity}
}

// ComputeFrameValues implements DepthProcessor.
func (dp *BasicDepthProcessor) ComputeFrameValues(raw *RawFrame, smoothPoints bool) (*ProcessedFrame, error) {
	if raw == nil {
		return nil, NewNoIntrinsicsError("raw frame is nil")
	}
	if err := raw.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	w, h := raw.Width, raw.Height
	if len(raw.Depth) != w*h {
		return nil, ErrFrameShape
	}

	depth := raw.Depth
	if smoothPoints {
		depth = smoothDepth(depth, w, h)
	}

	out := NewProcessedFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if d := depth[y*w+x]; d > 0 {
				out.Positions[y*w+x] = raw.Intrinsics.PixelToPoint(float64(x), float64(y), d)
			}
		}
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			d := depth[i]
			if d <= 0 || !dp.continuous(d, depth[i-1], depth[i+1], depth[i-w], depth[i+w]) {
				continue
			}
			p := out.Positions[i]
			dx := out.Positions[i+1].Sub(out.Positions[i-1])
			dy := out.Positions[i+w].Sub(out.Positions[i-w])
			n := utils.SafeNormalize(dx.Cross(dy))
			if n == (r3.Vector{}) {
				continue
			}
			// face the camera.
			if n.Dot(p) > 0 {
				n = n.Mul(-1)
			}
			cosIncidence := n.Dot(p.Mul(-1).Normalize())

			out.Normals[i] = n
			out.SurfelSizes[i] = math.Sqrt2 * d / raw.Intrinsics.Fx
			out.Weights[i] = cosIncidence * cosIncidence
			out.Confidences[i] = 1
		}
	}
	return out, nil
}

func (dp *BasicDepthProcessor) continuous(d float64, neighbours ...float64) bool {
	maxJump := dp.MaxDepthDiscontinuity
	if maxJump <= 0 {
		maxJump = DefaultMaxDepthDiscontinuity
	}
	for _, nd := range neighbours {
		if nd <= 0 || math.Abs(nd-d)/d > maxJump {
			return false
		}
	}
	return true
}

// smoothDepth box-filters depth over the valid pixels of each 3x3 neighbourhood. Missing pixels
// stay missing.
func smoothDepth(depth []float64, w, h int) []float64 {
	out := make([]float64, len(depth))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if depth[y*w+x] <= 0 {
				continue
			}
			sum, count := 0., 0.
			for ny := y - 1; ny <= y+1; ny++ {
				for nx := x - 1; nx <= x+1; nx++ {
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if nd := depth[ny*w+nx]; nd > 0 {
						sum += nd
						count++
					}
				}
			}
			out[y*w+x] = sum / count
		}
	}
	return out
}
