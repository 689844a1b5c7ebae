// Package rimage holds camera frames: the raw depth+color capture, its pinhole intrinsics, and the
// per-pixel surface values computed from it.
package rimage

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/surfelfusion/spatialmath"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	if params == nil {
		return r3.Vector{}
	}
	return r3.Vector{
		X: (x - params.Ppx) / params.Fx * z,
		Y: (y - params.Ppy) / params.Fy * z,
		Z: z,
	}
}

// PointToPixel projects a 3D point in the camera frame to the nearest pixel. ok is false for points
// at or behind the camera plane and for points that land outside the image.
func (params *PinholeCameraIntrinsics) PointToPixel(p r3.Vector) (x, y int, ok bool) {
	if params == nil || !(p.Z > 0) {
		return -1, -1, false
	}
	xPx := math.Round((p.X/p.Z)*params.Fx + params.Ppx)
	yPx := math.Round((p.Y/p.Z)*params.Fy + params.Ppy)
	if xPx < 0 || yPx < 0 || xPx >= float64(params.Width) || yPx >= float64(params.Height) {
		return -1, -1, false
	}
	return int(xPx), int(yPx), true
}

// ProjectionMatrix returns the homogeneous matrix that maps a camera-frame point (x, y, z) to
// (u, v, 1/z) after perspective division, where (u, v) are pixel coordinates.
func (params *PinholeCameraIntrinsics) ProjectionMatrix() spatialmath.Transform {
	if params == nil {
		return spatialmath.NewIdentity()
	}
	return spatialmath.Transform{
		params.Fx, 0, params.Ppx, 0,
		0, params.Fy, params.Ppy, 0,
		0, 0, 0, 1,
		0, 0, 1, 0,
	}
}
