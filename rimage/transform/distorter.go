package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// OpenCVDistortionType is the full OpenCV lens model: radial k1..k6, tangential p1 p2,
	// thin prism s1..s4 and sensor tilt tauX tauY.
	OpenCVDistortionType = DistortionType("opencv")
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
)

// maxDistortionCoefficients is the longest OpenCV distortion vector.
const maxDistortionCoefficients = 14

// ErrInvalidDistortion is returned for malformed distortion parameters.
var ErrInvalidDistortion = errors.New("invalid distortion_parameters")

// Distorter defines a Transform that takes an undistorted normalized point and distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidDistortion, msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case OpenCVDistortionType, "":
		return NewOpenCVDistortion(parameters)
	case BrownConradyDistortionType:
		if len(parameters) > 5 {
			return nil, InvalidDistortionError(fmt.Sprintf("list of parameters too long, expected max 5, got %d", len(parameters)))
		}
		p := make([]float64, 5)
		copy(p, parameters)
		// rk1 rk2 rk3 tp1 tp2 to k1 k2 p1 p2 k3
		return NewOpenCVDistortion([]float64{p[0], p[1], p[3], p[4], p[2]})
	default:
		return nil, InvalidDistortionError(fmt.Sprintf("do not know how to parse %q distortion model", distortionType))
	}
}

// OpenCVDistortion holds the distortion coefficients in OpenCV order.
type OpenCVDistortion struct {
	K1   float64 `json:"k1"`
	K2   float64 `json:"k2"`
	P1   float64 `json:"p1"`
	P2   float64 `json:"p2"`
	K3   float64 `json:"k3"`
	K4   float64 `json:"k4"`
	K5   float64 `json:"k5"`
	K6   float64 `json:"k6"`
	S1   float64 `json:"s1"`
	S2   float64 `json:"s2"`
	S3   float64 `json:"s3"`
	S4   float64 `json:"s4"`
	TauX float64 `json:"tau_x"`
	TauY float64 `json:"tau_y"`
}

// NewOpenCVDistortion takes up to 14 coefficients in the order k1 k2 p1 p2 [k3 [k4 k5 k6 [s1 s2 s3 s4 [tauX tauY]]]].
// Missing trailing coefficients are 0.
func NewOpenCVDistortion(inp []float64) (*OpenCVDistortion, error) {
	if len(inp) > maxDistortionCoefficients {
		return nil, InvalidDistortionError(
			fmt.Sprintf("list of parameters too long, expected max %d, got %d", maxDistortionCoefficients, len(inp)))
	}
	var p [maxDistortionCoefficients]float64
	copy(p[:], inp)
	return &OpenCVDistortion{
		K1: p[0], K2: p[1], P1: p[2], P2: p[3], K3: p[4], K4: p[5], K5: p[6], K6: p[7],
		S1: p[8], S2: p[9], S3: p[10], S4: p[11], TauX: p[12], TauY: p[13],
	}, nil
}

// ModelType returns the type of distortion model.
func (d *OpenCVDistortion) ModelType() DistortionType {
	return OpenCVDistortionType
}

// CheckValid checks if the fields for OpenCVDistortion have valid inputs.
func (d *OpenCVDistortion) CheckValid() error {
	if d == nil {
		return InvalidDistortionError("OpenCV shaped distortion_parameters not provided")
	}
	for i, v := range d.Parameters() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return InvalidDistortionError(fmt.Sprintf("coefficient %d is not finite", i))
		}
	}
	return nil
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (d *OpenCVDistortion) Parameters() []float64 {
	if d == nil {
		return []float64{}
	}
	return []float64{
		d.K1, d.K2, d.P1, d.P2, d.K3, d.K4, d.K5, d.K6,
		d.S1, d.S2, d.S3, d.S4, d.TauX, d.TauY,
	}
}

// Transform distorts the normalized image point (x, y) = (X/Z, Y/Z).
func (d *OpenCVDistortion) Transform(x, y float64) (float64, float64) {
	if d == nil {
		return x, y
	}
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	a1 := 2 * x * y
	a2 := r2 + 2*x*x
	a3 := r2 + 2*y*y
	radial := (1 + d.K1*r2 + d.K2*r4 + d.K3*r6) / (1 + d.K4*r2 + d.K5*r4 + d.K6*r6)
	xd := x*radial + d.P1*a1 + d.P2*a2 + d.S1*r2 + d.S2*r4
	yd := y*radial + d.P1*a3 + d.P2*a1 + d.S3*r2 + d.S4*r4

	if d.TauX == 0 && d.TauY == 0 {
		return xd, yd
	}
	tilted := mat.NewVecDense(3, nil)
	tilted.MulVec(d.tiltMatrix(), mat.NewVecDense(3, []float64{xd, yd, 1}))
	invProj := 1.0
	if z := tilted.AtVec(2); z != 0 {
		invProj = 1 / z
	}
	return invProj * tilted.AtVec(0), invProj * tilted.AtVec(1)
}

// tiltMatrix is the projection of a sensor tilted by tauX about x and tauY about y.
func (d *OpenCVDistortion) tiltMatrix() *mat.Dense {
	cx, sx := math.Cos(d.TauX), math.Sin(d.TauX)
	cy, sy := math.Cos(d.TauY), math.Sin(d.TauY)
	rotX := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cx, sx,
		0, -sx, cx,
	})
	rotY := mat.NewDense(3, 3, []float64{
		cy, 0, -sy,
		0, 1, 0,
		sy, 0, cy,
	})
	var rotXY mat.Dense
	rotXY.Mul(rotY, rotX)
	projZ := mat.NewDense(3, 3, []float64{
		rotXY.At(2, 2), 0, -rotXY.At(0, 2),
		0, rotXY.At(2, 2), -rotXY.At(1, 2),
		0, 0, 1,
	})
	var tilt mat.Dense
	tilt.Mul(projZ, &rotXY)
	return &tilt
}
