package rimage

import (
	"image"
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrFrameShape is returned when per-pixel arrays do not match a frame's dimensions.
var ErrFrameShape = errors.New("frame shape mismatch")

// RawFrame is one capture from a depth+color camera. Depth is row-major in scene units, with zero
// marking pixels that have no measurement. Color may be nil.
type RawFrame struct {
	Width, Height int
	Depth         []float64
	Color         image.Image
	Intrinsics    *PinholeCameraIntrinsics
}

// NewRawFrame validates and returns a raw frame whose size comes from the intrinsics.
func NewRawFrame(intrinsics *PinholeCameraIntrinsics, depth []float64, colorImg image.Image) (*RawFrame, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if len(depth) != intrinsics.Width*intrinsics.Height {
		return nil, errors.Wrapf(ErrFrameShape, "depth has %d values for a %dx%d frame",
			len(depth), intrinsics.Width, intrinsics.Height)
	}
	if colorImg != nil {
		b := colorImg.Bounds()
		if b.Dx() != intrinsics.Width || b.Dy() != intrinsics.Height {
			return nil, errors.Wrapf(ErrFrameShape, "color image is %dx%d for a %dx%d frame",
				b.Dx(), b.Dy(), intrinsics.Width, intrinsics.Height)
		}
	}
	return &RawFrame{
		Width:      intrinsics.Width,
		Height:     intrinsics.Height,
		Depth:      depth,
		Color:      colorImg,
		Intrinsics: intrinsics,
	}, nil
}

// DepthAt returns the depth at pixel (x, y).
func (rf *RawFrame) DepthAt(x, y int) float64 {
	return rf.Depth[y*rf.Width+x]
}

// ColorAt returns the color at pixel (x, y), or nil when the frame has no color image.
func (rf *RawFrame) ColorAt(x, y int) color.Color {
	if rf.Color == nil {
		return nil
	}
	b := rf.Color.Bounds()
	return rf.Color.At(b.Min.X+x, b.Min.Y+y)
}

// ProcessedFrame holds per-pixel surface values of a RawFrame, in the camera's own frame.
// Every slice is row-major with Width*Height entries.
type ProcessedFrame struct {
	Width, Height int
	Positions     []r3.Vector
	Normals       []r3.Vector
	SurfelSizes   []float64
	// Weights is each pixel's declared importance in [0, 1], used when sampling points for registration.
	Weights []float64
	// Confidences is each pixel's input confidence, compared against the fusion threshold.
	Confidences []float64
}

// NewProcessedFrame allocates a processed frame of the given size.
func NewProcessedFrame(width, height int) *ProcessedFrame {
	n := width * height
	return &ProcessedFrame{
		Width:       width,
		Height:      height,
		Positions:   make([]r3.Vector, n),
		Normals:     make([]r3.Vector, n),
		SurfelSizes: make([]float64, n),
		Weights:     make([]float64, n),
		Confidences: make([]float64, n),
	}
}

// CheckValid returns an error if any per-pixel array is the wrong length.
func (pf *ProcessedFrame) CheckValid() error {
	if pf == nil {
		return errors.New("processed frame is nil")
	}
	n := pf.Width * pf.Height
	for name, l := range map[string]int{
		"positions":    len(pf.Positions),
		"normals":      len(pf.Normals),
		"surfel sizes": len(pf.SurfelSizes),
		"weights":      len(pf.Weights),
		"confidences":  len(pf.Confidences),
	} {
		if l != n {
			return errors.Wrapf(ErrFrameShape, "%s has %d values for a %dx%d frame", name, l, pf.Width, pf.Height)
		}
	}
	return nil
}

// Frame pairs a raw capture with its processed values.
type Frame struct {
	Raw       *RawFrame
	Processed *ProcessedFrame
}

// NewFrame pairs raw and processed, checking that their shapes agree.
func NewFrame(raw *RawFrame, processed *ProcessedFrame) (*Frame, error) {
	frame := &Frame{Raw: raw, Processed: processed}
	if err := frame.CheckValid(); err != nil {
		return nil, err
	}
	return frame, nil
}

// CheckValid returns an error if either half of the frame is missing or the raw and processed
// values disagree in shape. Frames built by hand rather than with NewFrame should be checked
// before use.
func (f *Frame) CheckValid() error {
	if f == nil || f.Raw == nil {
		return errors.New("raw frame is nil")
	}
	if err := f.Raw.Intrinsics.CheckValid(); err != nil {
		return err
	}
	if f.Raw.Width != f.Raw.Intrinsics.Width || f.Raw.Height != f.Raw.Intrinsics.Height ||
		len(f.Raw.Depth) != f.Raw.Width*f.Raw.Height {
		return errors.Wrapf(ErrFrameShape, "raw frame is %dx%d with %d depth values and %dx%d intrinsics",
			f.Raw.Width, f.Raw.Height, len(f.Raw.Depth), f.Raw.Intrinsics.Width, f.Raw.Intrinsics.Height)
	}
	if err := f.Processed.CheckValid(); err != nil {
		return err
	}
	if f.Raw.Width != f.Processed.Width || f.Raw.Height != f.Processed.Height {
		return errors.Wrapf(ErrFrameShape, "raw frame is %dx%d but processed frame is %dx%d",
			f.Raw.Width, f.Raw.Height, f.Processed.Width, f.Processed.Height)
	}
	return nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.Raw.Width
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.Raw.Height
}
