package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNotRotation is returned when a matrix cannot be interpreted as a 3x3 rotation.
var ErrNotRotation = errors.New("matrix is not a 3x3 rotation")

const rodriguesEpsilon = 1e-5

// RotationVectorToMatrix converts a rotation vector (axis scaled by angle in radians) to a 3x3
// rotation matrix using the Rodrigues formula.
func RotationVectorToMatrix(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < math.SmallestNonzeroFloat64 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	c := math.Cos(theta)
	s := math.Sin(theta)
	c1 := 1 - c
	x, y, z := rvec.X/theta, rvec.Y/theta, rvec.Z/theta

	// R = cos(theta)*I + (1 - cos(theta))*r*rT + sin(theta)*[r]x
	return mat.NewDense(3, 3, []float64{
		c + c1*x*x, c1*x*y - s*z, c1*x*z + s*y,
		c1*x*y + s*z, c + c1*y*y, c1*y*z - s*x,
		c1*x*z - s*y, c1*y*z + s*x, c + c1*z*z,
	})
}

// MatrixToRotationVector converts a 3x3 matrix to a rotation vector. The input is first projected onto
// the closest orthonormal matrix (R = U*VT of its SVD), so slightly non-orthonormal input such as the
// linear block of an affine warp yields the rotation part of that block.
func MatrixToRotationVector(m mat.Matrix) (r3.Vector, error) {
	rows, cols := m.Dims()
	if rows != 3 || cols != 3 {
		return r3.Vector{}, errors.Wrapf(ErrNotRotation, "got %dx%d", rows, cols)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return r3.Vector{}, errors.Wrap(ErrNotRotation, "svd failed")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())

	rx := r.At(2, 1) - r.At(1, 2)
	ry := r.At(0, 2) - r.At(2, 0)
	rz := r.At(1, 0) - r.At(0, 1)

	s := math.Sqrt((rx*rx + ry*ry + rz*rz) * 0.25)
	c := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) * 0.5
	c = math.Max(math.Min(c, 1), -1)
	theta := math.Acos(c)

	if s >= rodriguesEpsilon {
		vth := theta / (2 * s)
		return r3.Vector{X: rx * vth, Y: ry * vth, Z: rz * vth}, nil
	}
	if c > 0 {
		return r3.Vector{}, nil
	}

	// theta is close to pi; recover the axis from the diagonal.
	t := (r.At(0, 0) + 1) * 0.5
	rx = math.Sqrt(math.Max(t, 0))
	t = (r.At(1, 1) + 1) * 0.5
	ry = math.Sqrt(math.Max(t, 0))
	if r.At(0, 1) < 0 {
		ry = -ry
	}
	t = (r.At(2, 2) + 1) * 0.5
	rz = math.Sqrt(math.Max(t, 0))
	if r.At(0, 2) < 0 {
		rz = -rz
	}
	if math.Abs(rx) < math.Abs(ry) && math.Abs(rx) < math.Abs(rz) && (r.At(1, 2) > 0) != (ry*rz > 0) {
		rz = -rz
	}
	axis := r3.Vector{X: rx, Y: ry, Z: rz}
	return axis.Mul(theta / axis.Norm()), nil
}

// RotationVectorFromSlice interprets 3 values as a rotation vector or 9 row-major values as a
// rotation matrix and returns the rotation vector.
func RotationVectorFromSlice(values []float64) (r3.Vector, error) {
	switch len(values) {
	case 3:
		return r3.Vector{X: values[0], Y: values[1], Z: values[2]}, nil
	case 9:
		return MatrixToRotationVector(mat.NewDense(3, 3, append([]float64(nil), values...)))
	default:
		return r3.Vector{}, errors.Errorf("rotation needs 3 or 9 values, got %d", len(values))
	}
}
