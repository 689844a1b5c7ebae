// Package spatialmath defines the homogeneous transforms the fusion engine uses for poses,
// view matrices and registration increments.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/surfelfusion/utils"
)

// Transform is a 4x4 homogeneous transform stored row-major. The zero value is not the identity;
// use NewIdentity.
type Transform [16]float64

// NewIdentity returns the identity transform.
func NewIdentity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// NewTranslation returns a pure translation.
func NewTranslation(t r3.Vector) Transform {
	ret := NewIdentity()
	ret[3], ret[7], ret[11] = t.X, t.Y, t.Z
	return ret
}

// NewRotationTranslation returns the rigid transform rotating by Rz(rz)·Ry(ry)·Rx(rx), in radians,
// followed by the translation t.
func NewRotationTranslation(rx, ry, rz float64, t r3.Vector) Transform {
	sa, ca := math.Sincos(rx)
	sb, cb := math.Sincos(ry)
	sg, cg := math.Sincos(rz)
	return Transform{
		cg * cb, -sg*ca + cg*sb*sa, sg*sa + cg*sb*ca, t.X,
		sg * cb, cg*ca + sg*sb*sa, -cg*sa + sg*sb*ca, t.Y,
		-sb, cb * sa, cb * ca, t.Z,
		0, 0, 0, 1,
	}
}

// NewTransformFromRows builds a transform from 16 row-major values.
func NewTransformFromRows(rows ...float64) (Transform, error) {
	var ret Transform
	if len(rows) != len(ret) {
		return ret, errors.Errorf("expected %d values for a transform, got %d", len(ret), len(rows))
	}
	copy(ret[:], rows)
	return ret, nil
}

// At returns the element at row r, column c.
func (t Transform) At(r, c int) float64 {
	return t[r*4+c]
}

// Mul returns t·o, i.e. o is applied first.
func (t Transform) Mul(o Transform) Transform {
	var ret Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			ret[r*4+c] = t[r*4]*o[c] + t[r*4+1]*o[4+c] + t[r*4+2]*o[8+c] + t[r*4+3]*o[12+c]
		}
	}
	return ret
}

// TransformPoint applies t to p including the perspective division. A homogeneous w of exactly
// zero is treated as one.
func (t Transform) TransformPoint(p r3.Vector) r3.Vector {
	x := t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3]
	y := t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7]
	z := t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11]
	w := t[12]*p.X + t[13]*p.Y + t[14]*p.Z + t[15]
	if w == 0 {
		w = 1
	}
	return r3.Vector{X: x / w, Y: y / w, Z: z / w}
}

// TransformDirection applies only the upper 3x3 block of t to v.
func (t Transform) TransformDirection(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: t[0]*v.X + t[1]*v.Y + t[2]*v.Z,
		Y: t[4]*v.X + t[5]*v.Y + t[6]*v.Z,
		Z: t[8]*v.X + t[9]*v.Y + t[10]*v.Z,
	}
}

// NormalMatrix returns the inverse-transpose of the upper 3x3 block of t, as a transform with no
// translation. It is the matrix that keeps normals perpendicular to transformed surfaces when t
// contains scale or shear. ok is false when the block is singular.
func (t Transform) NormalMatrix() (normal Transform, ok bool) {
	a, b, c := t[0], t[1], t[2]
	d, e, f := t[4], t[5], t[6]
	g, h, i := t[8], t[9], t[10]

	// cofactors
	c00, c01, c02 := e*i-f*h, -(d*i - f*g), d*h-e*g
	c10, c11, c12 := -(b*i - c*h), a*i-c*g, -(a*h - b*g)
	c20, c21, c22 := b*f-c*e, -(a*f - c*d), a*e-b*d

	det := a*c00 + b*c01 + c*c02
	if det == 0 || !utils.IsFinite(det) {
		return Transform{}, false
	}
	// inverse = adjugate/det = cofactor^T/det, so inverse-transpose = cofactor/det.
	inv := 1 / det
	return Transform{
		c00 * inv, c01 * inv, c02 * inv, 0,
		c10 * inv, c11 * inv, c12 * inv, 0,
		c20 * inv, c21 * inv, c22 * inv, 0,
		0, 0, 0, 1,
	}, true
}

// Inverse returns the inverse of t.
func (t Transform) Inverse() (Transform, error) {
	data := t
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(4, 4, data[:])); err != nil {
		return Transform{}, errors.Wrap(err, "transform is not invertible")
	}
	var ret Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			ret[r*4+c] = inv.At(r, c)
		}
	}
	return ret, nil
}

// RigidInverse returns the inverse of t assuming its upper 3x3 block is a rotation.
func (t Transform) RigidInverse() Transform {
	ret := Transform{
		t[0], t[4], t[8], 0,
		t[1], t[5], t[9], 0,
		t[2], t[6], t[10], 0,
		0, 0, 0, 1,
	}
	tr := ret.TransformDirection(t.Translation())
	ret[3], ret[7], ret[11] = -tr.X, -tr.Y, -tr.Z
	return ret
}

// Translation returns the translation column.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t[3], Y: t[7], Z: t[11]}
}

// Column returns column c (0..2) of the upper 3x3 block.
func (t Transform) Column(c int) r3.Vector {
	return r3.Vector{X: t[c], Y: t[4+c], Z: t[8+c]}
}

// IsFinite reports whether every element is finite.
func (t Transform) IsFinite() bool {
	for _, v := range t {
		if !utils.IsFinite(v) {
			return false
		}
	}
	return true
}

// AlmostEqual reports whether every element of t is within epsilon of the same element of o.
func (t Transform) AlmostEqual(o Transform, epsilon float64) bool {
	for i := range t {
		if math.Abs(t[i]-o[i]) > epsilon {
			return false
		}
	}
	return true
}

// Dense returns t as a gonum matrix.
func (t Transform) Dense() *mat.Dense {
	data := t
	return mat.NewDense(4, 4, data[:])
}

func (t Transform) String() string {
	return fmt.Sprintf("[%g %g %g %g; %g %g %g %g; %g %g %g %g; %g %g %g %g]",
		t[0], t[1], t[2], t[3], t[4], t[5], t[6], t[7], t[8], t[9], t[10], t[11], t[12], t[13], t[14], t[15])
}
