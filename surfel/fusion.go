package surfel

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"go.viam.com/surfelfusion/landmarks"
	"go.viam.com/surfelfusion/logging"
	"go.viam.com/surfelfusion/rimage"
	"go.viam.com/surfelfusion/spatialmath"
	"go.viam.com/surfelfusion/utils"
)

// FusionEngine merges processed frames into a surfel map. It reuses its index lookup between
// frames and is not safe for concurrent use.
type FusionEngine struct {
	logger   logging.Logger
	renderer IndexMapRenderer
	lookup   *IndexLookup
}

// NewFusionEngine returns an engine that finds existing surfels with renderer.
func NewFusionEngine(renderer IndexMapRenderer, logger logging.Logger) *FusionEngine {
	return &FusionEngine{logger: logger, renderer: renderer, lookup: NewIndexLookup(0, 0)}
}

// DoFusion merges every accepted pixel of frame into surfels. extrinsic maps camera points into
// the world. Each landmark records a hit on the surfel rendered at its pixel before any sample
// was fused. When cfg.CullLowConfidence is set, low confidence surfels are culled afterwards and
// their original indices returned when index is non-empty; index is renumbered to match. Finally every
// surfel's lifetime is decremented.
//
// If frame fails Frame.CheckValid, or the surfel map cannot be rendered from the frame's view, an
// error wrapping ErrRasterization is returned and surfels is left unmodified.
func (fe *FusionEngine) DoFusion(
	cfg Config,
	frame *rimage.Frame,
	surfels *Surfels,
	extrinsic spatialmath.Transform,
	marks []landmarks.Landmark,
	index landmarks.Index,
) ([]int, error) {
	if err := frame.CheckValid(); err != nil {
		return nil, errors.Wrapf(ErrRasterization, "invalid frame: %v", err)
	}
	view, err := extrinsic.Inverse()
	if err != nil {
		return nil, errors.Wrap(ErrRasterization, err.Error())
	}
	normalMatrix, ok := extrinsic.NormalMatrix()
	if !ok {
		return nil, errors.Wrap(ErrRasterization, "extrinsic has no normal transform")
	}

	w, h := frame.Width(), frame.Height()
	fe.lookup.resize(w, h)
	if err := fe.renderer.Draw(*surfels, view, frame.Raw, fe.lookup); err != nil {
		return nil, errors.Wrap(err, "cannot render surfel index map")
	}

	processed := frame.Processed
	cosThreshold := math.Cos(cfg.IncidenceThreshold())
	maxMergeDistSq := utils.Square(cfg.SurfelMergeRadiusScaleFactor)
	rendered := len(*surfels)
	var created, merged int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			position := processed.Positions[i]
			depth := position.Z
			if !(depth >= cfg.MinDepth && depth <= cfg.MaxDepth) {
				continue
			}
			if !(processed.Confidences[i] >= cfg.InputConfidenceThreshold) {
				continue
			}
			normal := utils.SafeNormalize(processed.Normals[i])
			cosIncidence := -normal.Dot(utils.SafeNormalize(position))
			if !(cosIncidence >= cosThreshold) {
				continue
			}
			weight := cosIncidence * cosIncidence

			worldPosition := extrinsic.TransformPoint(position)
			worldNormal := utils.SafeNormalize(normalMatrix.TransformDirection(normal))
			color, hasColor := linearColor(frame.Raw, x, y)

			surfelIndex, hit := fe.lookup.At(x, y)
			hit = hit && surfelIndex < rendered
			if hit {
				delta := (*surfels)[surfelIndex].Position.Sub(worldPosition).Norm2()
				hit = delta/math.Pow(depth, 4) <= maxMergeDistSq
			}
			if !hit {
				*surfels = append(*surfels, Surfel{
					Position: worldPosition,
					Normal:   worldNormal,
					Color:    color,
					Weight:   weight,
					Size:     processed.SurfelSizes[i],
					Lifetime: cfg.SurfelLifetime,
				})
				created++
				continue
			}
			if !hasColor {
				// keep the surfel's color when the sample carries none
				color = (*surfels)[surfelIndex].Color
			}
			(*surfels)[surfelIndex].merge(worldPosition, worldNormal, color, weight, processed.SurfelSizes[i], cfg.SurfelLifetime)
			merged++
		}
	}

	if index != nil {
		for _, mark := range marks {
			if surfelIndex, ok := fe.lookup.At(mark.Pixel(w, h)); ok && surfelIndex < rendered {
				index.AddHit(surfelIndex, mark.ID)
			}
		}
	}

	var deleted []int
	var culled int
	if cfg.CullLowConfidence {
		deleted, culled = cull(surfels, index, func(s *Surfel) bool {
			return s.Weight < float64(cfg.MinCount) && (cfg.IgnoreLifetime || s.Lifetime <= 0)
		})
	}
	for i := range *surfels {
		(*surfels)[i].Lifetime--
	}

	fe.logger.Debugw("fused frame", "created", created, "merged", merged, "culled", culled, "surfels", len(*surfels))
	return deleted, nil
}

// Finish culls, regardless of lifetime, every surfel with weight below cfg.MinCount. As in
// DoFusion, the original indices are returned and index renumbered only when index is non-empty.
func (fe *FusionEngine) Finish(cfg Config, surfels *Surfels, index landmarks.Index) []int {
	deleted, culled := cull(surfels, index, func(s *Surfel) bool {
		return s.Weight < float64(cfg.MinCount)
	})
	fe.logger.Debugw("final cull", "culled", culled, "surfels", len(*surfels))
	return deleted
}

// cull removes the surfels remove selects. Original indices are only tracked, and index only
// renumbered, when index holds hits.
func cull(surfels *Surfels, index landmarks.Index, remove func(*Surfel) bool) (deleted []int, removed int) {
	before := len(*surfels)
	if index == nil || index.Size() == 0 {
		surfels.compact(remove, false)
		return nil, before - len(*surfels)
	}
	deleted = surfels.compact(remove, true)
	index.DeleteSurfelLandmarksAndRenumber(deleted)
	return deleted, len(deleted)
}

func (s *Surfel) merge(position, normal, color r3.Vector, weight, size float64, lifetime int) {
	total := s.Weight + weight
	if total > 0 {
		s.Position = s.Position.Mul(s.Weight).Add(position.Mul(weight)).Mul(1 / total)
		s.Normal = utils.SafeNormalize(s.Normal.Mul(s.Weight).Add(normal.Mul(weight)))
		s.Color = s.Color.Mul(s.Weight).Add(color.Mul(weight)).Mul(1 / total)
	}
	if size > s.Size {
		s.Size = (s.Size + size) / 2
	} else {
		s.Size = size
	}
	s.Weight = total
	s.Lifetime = lifetime
}

// linearColor returns the frame's color at (x, y) in linear RGB. A frame without a color image
// reads as black. A fully transparent pixel has no color: ok is false and the returned color is
// black.
func linearColor(raw *rimage.RawFrame, x, y int) (r3.Vector, bool) {
	c := raw.ColorAt(x, y)
	if c == nil {
		return r3.Vector{}, true
	}
	col, ok := colorful.MakeColor(c)
	if !ok {
		return r3.Vector{}, false
	}
	r, g, b := col.LinearRgb()
	return r3.Vector{X: r, Y: g, Z: b}, true
}
