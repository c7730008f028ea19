// Package spatialmath converts between the rotation representations used by the camera model
// and the warp decomposition: axis-angle (R4), rotation vectors (R3) and 3x3 rotation matrices.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// See here for a thorough explanation: https://en.wikipedia.org/wiki/Axis%E2%80%93angle_representation
// An orientation can be expressed by an axis, i.e. a line from the origin to a point on the unit sphere,
// represented by (rx, ry, rz), and a rotation around that axis, theta. These four numbers can be used
// as-is (R4), or they can be converted to R3, where theta is multiplied by each of the unit sphere
// components to give a vector whose length is theta and whose direction is the original axis. R3 is
// the "rotation vector" of photogrammetry toolkits.

// R4AA represents an R4 axis angle.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA creates an empty R4AA struct.
func NewR4AA() *R4AA {
	return &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
}

// ToR3 converts an R4 angle axis to R3.
func (r4 *R4AA) ToR3() r3.Vector {
	return r3.Vector{X: r4.RX * r4.Theta, Y: r4.RY * r4.Theta, Z: r4.RZ * r4.Theta}
}

// Normalize scales the x, y, and z components of a R4 axis angle to be on the unit sphere. An axis of
// zero length is replaced by +z with no rotation.
func (r4 *R4AA) Normalize() {
	norm := math.Sqrt(r4.RX*r4.RX + r4.RY*r4.RY + r4.RZ*r4.RZ)
	if norm == 0.0 {
		*r4 = *NewR4AA()
		return
	}
	r4.RX /= norm
	r4.RY /= norm
	r4.RZ /= norm
}

// RotationMatrix returns the 3x3 rotation matrix of the axis angle.
func (r4 *R4AA) RotationMatrix() *mat.Dense {
	return RotationVectorToMatrix(r4.ToR3())
}

// R3ToR4 converts an R3 angle axis to R4.
func R3ToR4(aa r3.Vector) *R4AA {
	theta := aa.Norm()
	if theta == 0 {
		return NewR4AA()
	}
	return &R4AA{theta, aa.X / theta, aa.Y / theta, aa.Z / theta}
}
