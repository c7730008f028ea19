// Package strain decomposes the warp of a tracked patch into rigid motion, strain and hourglass
// modes.
package strain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/spatialmath"
	"go.viam.com/markertrack/utils"
)

// Indices of the decomposed components.
const (
	TX = iota
	TY
	Rotation
	Exx
	Eyy
	Exy
	HourglassX
	HourglassY
)

// ComponentNames names the components in index order.
var ComponentNames = [8]string{"tx", "ty", "rotation_deg", "exx", "eyy", "exy", "hourglass_x", "hourglass_y"}

// ErrUnsupportedWarp is returned for warps that are not 2x3 or 3x3.
var ErrUnsupportedWarp = errors.New("warp must be a 2x3 or 3x3 matrix")

// The decomposition works on a unit square patch.
const patchSize = float32(1)

// Normalize converts a 2x3 or 3x3 warp to a single precision 3x3 matrix. The missing row of a
// 2x3 warp is [0 0 1].
func Normalize(w mat.Matrix) (mgl32.Mat3, error) {
	if w == nil {
		return mgl32.Mat3{}, ErrUnsupportedWarp
	}
	rows, cols := w.Dims()
	if cols != 3 || (rows != 2 && rows != 3) {
		return mgl32.Mat3{}, errors.Wrapf(ErrUnsupportedWarp, "got %dx%d", rows, cols)
	}
	out := mgl32.Ident3()
	for i := 0; i < rows; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, float32(w.At(i, j)))
		}
	}
	return out, nil
}

// Decompose returns [tx, ty, rotation (degrees), exx, eyy, exy, hourglass x, hourglass y] of the
// warp w about ref. Unsupported shapes are logged and give all zeros.
func Decompose(w mat.Matrix, ref r2.Point, logger logging.Logger) [8]float32 {
	warp, err := Normalize(w)
	if err != nil {
		logger.Warnw("cannot decompose warp, returning zero deformation", "error", err)
		return [8]float32{}
	}
	return decompose(warp, ref)
}

// DecomposeFloat32 is Decompose for a single precision warp given as rows.
func DecomposeFloat32(rows [][]float32, ref r2.Point, logger logging.Logger) [8]float32 {
	var flat []float64
	cols := -1
	for _, row := range rows {
		if cols >= 0 && len(row) != cols {
			logger.Warnw("cannot decompose warp, returning zero deformation",
				"error", errors.Wrap(ErrUnsupportedWarp, "rows differ in length"))
			return [8]float32{}
		}
		cols = len(row)
		for _, v := range row {
			flat = append(flat, float64(v))
		}
	}
	if len(flat) == 0 {
		logger.Warnw("cannot decompose warp, returning zero deformation", "error", ErrUnsupportedWarp)
		return [8]float32{}
	}
	return Decompose(mat.NewDense(len(rows), cols, flat), ref, logger)
}

func decompose(w mgl32.Mat3, ref r2.Point) [8]float32 {
	if ref.X != 0 || ref.Y != 0 {
		shift := mgl32.Translate2D(float32(-ref.X), float32(-ref.Y))
		back := mgl32.Translate2D(float32(ref.X), float32(ref.Y))
		w = shift.Mul3(w).Mul3(back)
	}

	rot, rotDeg := rigidRotation(w)
	deform := w.Mul3(rot.Inv())

	corners := [4][2]float32{
		{-0.5 * patchSize, -0.5 * patchSize},
		{+0.5 * patchSize, -0.5 * patchSize},
		{+0.5 * patchSize, +0.5 * patchSize},
		{-0.5 * patchSize, +0.5 * patchSize},
	}
	var disp [8]float32
	for i, c := range corners {
		moved := deform.Mul3x1(mgl32.Vec3{c[0], c[1], 1})
		disp[2*i] = moved[0] - c[0]
		disp[2*i+1] = moved[1] - c[1]
	}

	out, ok := solve8(ShapeMatrix(patchSize, patchSize), disp)
	if !ok {
		return [8]float32{}
	}
	out[Rotation] += rotDeg
	return out
}

// rigidRotation extracts the in-plane rotation of the linear block of w through a Rodrigues round
// trip, which also re-orthonormalizes it. It returns the clean rotation and its angle in degrees.
func rigidRotation(w mgl32.Mat3) (mgl32.Mat3, float32) {
	block := mat.NewDense(3, 3, []float64{
		float64(w.At(0, 0)), float64(w.At(0, 1)), 0,
		float64(w.At(1, 0)), float64(w.At(1, 1)), 0,
		0, 0, 1,
	})
	rvec, err := spatialmath.MatrixToRotationVector(block)
	if err != nil {
		return mgl32.Ident3(), 0
	}
	axis := spatialmath.R3ToR4(r3.Vector{X: float64(float32(rvec.X)), Y: float64(float32(rvec.Y)), Z: float64(float32(rvec.Z))})
	clean := axis.RotationMatrix()
	var rot mgl32.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, float32(clean.At(i, j)))
		}
	}
	return rot, float32(utils.RadToDeg(axis.Theta * axis.RZ))
}

// ShapeMatrix maps the 8 modes [tx, ty, rotation (1 degree), exx, eyy, exy, hourglass x,
// hourglass y] of a w x h patch to the displacements [x0 y0 x1 y1 x2 y2 x3 y3] of its corners,
// ordered top left, top right, bottom right, bottom left.
func ShapeMatrix(w, h float32) [8][8]float32 {
	const degree = float32(math.Pi / 180)
	shear := w * h / (w*w + h*h)
	cols := [8][8]float32{
		{1, 0, 1, 0, 1, 0, 1, 0},
		{0, 1, 0, 1, 0, 1, 0, 1},
		{
			0.5 * h * degree, -0.5 * w * degree, 0.5 * h * degree, 0.5 * w * degree,
			-0.5 * h * degree, 0.5 * w * degree, -0.5 * h * degree, -0.5 * w * degree,
		},
		{-0.5 * w, 0, 0.5 * w, 0, 0.5 * w, 0, -0.5 * w, 0},
		{0, -0.5 * h, 0, -0.5 * h, 0, 0.5 * h, 0, 0.5 * h},
		{
			-0.5 * w * shear, -0.5 * h * shear, -0.5 * w * shear, 0.5 * h * shear,
			0.5 * w * shear, 0.5 * h * shear, 0.5 * w * shear, -0.5 * h * shear,
		},
	}
	// hourglass modes flip the sign of the strain modes on one pair of corners
	for i := 0; i < 8; i++ {
		if i < 4 {
			cols[6][i] = -cols[3][i]
		} else {
			cols[6][i] = cols[3][i]
		}
		if i < 2 || i >= 6 {
			cols[7][i] = -cols[4][i]
		} else {
			cols[7][i] = cols[4][i]
		}
	}

	var m [8][8]float32
	for j := range cols {
		for i := range cols[j] {
			m[i][j] = cols[j][i]
		}
	}
	return m
}

// solve8 solves a x = b by Gaussian elimination with partial pivoting.
func solve8(a [8][8]float32, b [8]float32) ([8]float32, bool) {
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if abs32(a[r][col]) > abs32(a[pivot][col]) {
				pivot = r
			}
		}
		if abs32(a[pivot][col]) < 1e-12 {
			return [8]float32{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		inv := 1 / a[col][col]
		for k := col; k < 8; k++ {
			a[col][k] *= inv
		}
		b[col] *= inv
		for r := 0; r < 8; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for k := col; k < 8; k++ {
				a[r][k] -= f * a[col][k]
			}
			b[r] -= f * b[col]
		}
	}
	return b, true
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
