package rimage

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func testIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Width: 8, Height: 6, Fx: 10, Fy: 10, Ppx: 4, Ppy: 3}
}

func planeDepth(intrinsics *PinholeCameraIntrinsics, z float64) []float64 {
	depth := make([]float64, intrinsics.Width*intrinsics.Height)
	for i := range depth {
		depth[i] = z
	}
	return depth
}

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, nilIntrinsics.CheckValid(), test.ShouldNotBeNil)
	test.That(t, testIntrinsics().CheckValid(), test.ShouldBeNil)

	bad := testIntrinsics()
	bad.Fx = 0
	err := bad.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Fx")
}

func TestProjection(t *testing.T) {
	intrinsics := testIntrinsics()
	p := intrinsics.PixelToPoint(6, 1, 2)
	test.That(t, p, test.ShouldResemble, r3.Vector{X: 0.4, Y: -0.4, Z: 2})

	x, y, ok := intrinsics.PointToPixel(p)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, x, test.ShouldEqual, 6)
	test.That(t, y, test.ShouldEqual, 1)

	_, _, ok = intrinsics.PointToPixel(r3.Vector{X: 0, Y: 0, Z: -1})
	test.That(t, ok, test.ShouldBeFalse)
	_, _, ok = intrinsics.PointToPixel(r3.Vector{X: 10, Y: 0, Z: 1})
	test.That(t, ok, test.ShouldBeFalse)

	// the projection matrix agrees with PointToPixel after perspective division.
	uvw := intrinsics.ProjectionMatrix().TransformPoint(p)
	test.That(t, uvw.X, test.ShouldAlmostEqual, 6)
	test.That(t, uvw.Y, test.ShouldAlmostEqual, 1)
	test.That(t, uvw.Z, test.ShouldAlmostEqual, 0.5)
}

func TestNewRawFrame(t *testing.T) {
	intrinsics := testIntrinsics()
	_, err := NewRawFrame(intrinsics, make([]float64, 3), nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewRawFrame(intrinsics, planeDepth(intrinsics, 1), image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	test.That(t, err, test.ShouldNotBeNil)

	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	img.Set(3, 2, color.NRGBA{R: 255, A: 255})
	raw, err := NewRawFrame(intrinsics, planeDepth(intrinsics, 1), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw.DepthAt(3, 2), test.ShouldEqual, 1.)
	r, _, _, _ := raw.ColorAt(3, 2).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0xffff))
}

func TestBasicDepthProcessorPlane(t *testing.T) {
	intrinsics := testIntrinsics()
	raw, err := NewRawFrame(intrinsics, planeDepth(intrinsics, 2), nil)
	test.That(t, err, test.ShouldBeNil)

	for _, smooth := range []bool{false, true} {
		out, err := NewBasicDepthProcessor().ComputeFrameValues(raw, smooth)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.CheckValid(), test.ShouldBeNil)

		for y := 0; y < intrinsics.Height; y++ {
			for x := 0; x < intrinsics.Width; x++ {
				i := y*intrinsics.Width + x
				test.That(t, out.Positions[i].Z, test.ShouldAlmostEqual, 2)
				border := x == 0 || y == 0 || x == intrinsics.Width-1 || y == intrinsics.Height-1
				if border {
					test.That(t, out.Confidences[i], test.ShouldEqual, 0.)
					continue
				}
				test.That(t, out.Confidences[i], test.ShouldEqual, 1.)
				test.That(t, out.Normals[i].X, test.ShouldAlmostEqual, 0)
				test.That(t, out.Normals[i].Y, test.ShouldAlmostEqual, 0)
				test.That(t, out.Normals[i].Z, test.ShouldAlmostEqual, -1)
				test.That(t, out.SurfelSizes[i], test.ShouldAlmostEqual, math.Sqrt2*0.2)
				p := out.Positions[i]
				test.That(t, out.Weights[i], test.ShouldAlmostEqual, (p.Z*p.Z)/p.Norm2())
			}
		}
	}
}

func TestBasicDepthProcessorDiscontinuity(t *testing.T) {
	intrinsics := testIntrinsics()
	depth := planeDepth(intrinsics, 2)
	depth[3*intrinsics.Width+4] = 4
	raw, err := NewRawFrame(intrinsics, depth, nil)
	test.That(t, err, test.ShouldBeNil)

	out, err := NewBasicDepthProcessor().ComputeFrameValues(raw, false)
	test.That(t, err, test.ShouldBeNil)
	// the spike and its four neighbours are on an edge.
	for _, i := range []int{3*8 + 4, 3*8 + 3, 3*8 + 5, 2*8 + 4, 4*8 + 4} {
		test.That(t, out.Confidences[i], test.ShouldEqual, 0.)
	}
	test.That(t, out.Confidences[2*8+2], test.ShouldEqual, 1.)
}

func TestNewFrame(t *testing.T) {
	intrinsics := testIntrinsics()
	raw, err := NewRawFrame(intrinsics, planeDepth(intrinsics, 1), nil)
	test.That(t, err, test.ShouldBeNil)

	_, err = NewFrame(raw, NewProcessedFrame(4, 4))
	test.That(t, err, test.ShouldNotBeNil)

	bad := NewProcessedFrame(8, 6)
	bad.Weights = bad.Weights[:3]
	_, err = NewFrame(raw, bad)
	test.That(t, err, test.ShouldNotBeNil)

	frame, err := NewFrame(raw, NewProcessedFrame(8, 6))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Width(), test.ShouldEqual, 8)
	test.That(t, frame.Height(), test.ShouldEqual, 6)
}

func TestFrameCheckValid(t *testing.T) {
	intrinsics := testIntrinsics()
	raw, err := NewRawFrame(intrinsics, planeDepth(intrinsics, 1), nil)
	test.That(t, err, test.ShouldBeNil)

	var nilFrame *Frame
	test.That(t, nilFrame.CheckValid(), test.ShouldNotBeNil)
	test.That(t, (&Frame{Processed: NewProcessedFrame(8, 6)}).CheckValid(), test.ShouldNotBeNil)
	test.That(t, (&Frame{Raw: raw}).CheckValid(), test.ShouldNotBeNil)

	err = (&Frame{Raw: raw, Processed: NewProcessedFrame(10, 10)}).CheckValid()
	test.That(t, errors.Is(err, ErrFrameShape), test.ShouldBeTrue)

	truncated := *raw
	truncated.Depth = truncated.Depth[:10]
	err = (&Frame{Raw: &truncated, Processed: NewProcessedFrame(8, 6)}).CheckValid()
	test.That(t, errors.Is(err, ErrFrameShape), test.ShouldBeTrue)

	test.That(t, (&Frame{Raw: raw, Processed: NewProcessedFrame(8, 6)}).CheckValid(), test.ShouldBeNil)
}
