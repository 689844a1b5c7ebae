package spatialmath

import (
	"math"

	"go.viam.com/surfelfusion/utils"
)

// RotationColumnAngle returns the largest angle, in radians, between corresponding columns of the
// rotation blocks of from and to. Dot products are clamped to [-1, 1] so that identical
// rotations yield exactly zero.
func RotationColumnAngle(from, to Transform) float64 {
	maxAngle := 0.
	for c := 0; c < 3; c++ {
		a := utils.SafeNormalize(from.Column(c))
		b := utils.SafeNormalize(to.Column(c))
		angle := math.Acos(utils.Clamp(a.Dot(b), -1, 1))
		if math.IsNaN(angle) {
			return math.NaN()
		}
		maxAngle = math.Max(maxAngle, angle)
	}
	return maxAngle
}

// AngularSpeed calculates the angular speed, in rad/s, implied by moving from one pose to another
// in dt seconds. A non-positive dt yields NaN.
func AngularSpeed(from, to Transform, dt float64) float64 {
	if !(dt > 0) {
		return math.NaN()
	}
	return RotationColumnAngle(from, to) / dt
}

// LinearSpeed calculates the speed, in units/s, implied by the change in translation between two
// poses over dt seconds. A non-positive dt yields NaN.
func LinearSpeed(from, to Transform, dt float64) float64 {
	if !(dt > 0) {
		return math.NaN()
	}
	return to.Translation().Sub(from.Translation()).Norm() / dt
}
