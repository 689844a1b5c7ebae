package surfel

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/surfelfusion/rimage"
	"go.viam.com/surfelfusion/spatialmath"
)

// ErrRasterization is returned when the surfel map cannot be rendered into a frame's view.
var ErrRasterization = errors.New("cannot rasterize surfels")

// maxSplatRadius caps the pixel radius a single surfel covers.
const maxSplatRadius = 8

// IndexLookup answers which surfel, if any, is visible at each pixel of a frame.
type IndexLookup struct {
	width, height int
	// ids holds surfel index + 1 so that the zero value means no surfel.
	ids []int
}

// NewIndexLookup returns an empty lookup for a width x height image.
func NewIndexLookup(width, height int) *IndexLookup {
	return &IndexLookup{width: width, height: height, ids: make([]int, width*height)}
}

// Width returns the lookup width in pixels.
func (l *IndexLookup) Width() int {
	return l.width
}

// Height returns the lookup height in pixels.
func (l *IndexLookup) Height() int {
	return l.height
}

// At returns the surfel visible at (x, y). ok is false when no surfel is visible or the pixel is
// outside the image.
func (l *IndexLookup) At(x, y int) (surfelIndex int, ok bool) {
	if x < 0 || y < 0 || x >= l.width || y >= l.height {
		return 0, false
	}
	id := l.ids[y*l.width+x]
	if id == 0 {
		return 0, false
	}
	return id - 1, true
}

// Set marks surfelIndex as visible at (x, y).
func (l *IndexLookup) Set(x, y, surfelIndex int) {
	l.ids[y*l.width+x] = surfelIndex + 1
}

// Unset marks (x, y) as having no visible surfel.
func (l *IndexLookup) Unset(x, y int) {
	l.ids[y*l.width+x] = 0
}

// Clear marks every pixel as empty.
func (l *IndexLookup) Clear() {
	for i := range l.ids {
		l.ids[i] = 0
	}
}

func (l *IndexLookup) resize(width, height int) {
	if l.width == width && l.height == height {
		l.Clear()
		return
	}
	*l = *NewIndexLookup(width, height)
}

// IndexMapRenderer rasterizes a surfel map into the view of a raw frame. view maps world points
// into the camera frame. Draw fills every pixel of out, which must have the frame's size.
type IndexMapRenderer interface {
	Draw(surfels Surfels, view spatialmath.Transform, raw *rimage.RawFrame, out *IndexLookup) error
}

// PointRenderer is an IndexMapRenderer that splats each surfel centre as a disc of radius
// size*fx/z pixels into a depth buffer; the nearest surfel wins each pixel.
type PointRenderer struct {
	zbuf []float64
}

// NewPointRenderer returns a PointRenderer.
func NewPointRenderer() *PointRenderer {
	return &PointRenderer{}
}

// Draw implements IndexMapRenderer.
func (pr *PointRenderer) Draw(surfels Surfels, view spatialmath.Transform, raw *rimage.RawFrame, out *IndexLookup) error {
	if raw == nil || out == nil {
		return errors.Wrap(ErrRasterization, "missing frame or lookup")
	}
	if err := raw.Intrinsics.CheckValid(); err != nil {
		return errors.Wrap(ErrRasterization, err.Error())
	}
	if out.width != raw.Width || out.height != raw.Height {
		return errors.Wrapf(ErrRasterization, "lookup is %dx%d but frame is %dx%d", out.width, out.height, raw.Width, raw.Height)
	}
	if !view.IsFinite() {
		return errors.Wrap(ErrRasterization, "view transform is not finite")
	}

	out.Clear()
	n := raw.Width * raw.Height
	if cap(pr.zbuf) < n {
		pr.zbuf = make([]float64, n)
	}
	pr.zbuf = pr.zbuf[:n]
	for i := range pr.zbuf {
		pr.zbuf[i] = math.Inf(1)
	}

	fx := raw.Intrinsics.Fx
	for i := range surfels {
		p := view.TransformPoint(surfels[i].Position)
		cx, cy, ok := raw.Intrinsics.PointToPixel(p)
		if !ok {
			continue
		}
		radius := int(surfels[i].Size * fx / p.Z)
		if radius > maxSplatRadius {
			radius = maxSplatRadius
		}
		for y := cy - radius; y <= cy+radius; y++ {
			if y < 0 || y >= raw.Height {
				continue
			}
			for x := cx - radius; x <= cx+radius; x++ {
				if x < 0 || x >= raw.Width {
					continue
				}
				dx, dy := x-cx, y-cy
				if dx*dx+dy*dy > radius*radius {
					continue
				}
				if k := y*raw.Width + x; p.Z < pr.zbuf[k] {
					pr.zbuf[k] = p.Z
					out.Set(x, y, i)
				}
			}
		}
	}
	return nil
}
