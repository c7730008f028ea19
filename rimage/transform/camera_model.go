package transform

import (
	"encoding/json"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markertrack/spatialmath"
	"go.viam.com/markertrack/utils"
)

// Matrix is a row-major matrix as stored in camera files. In JSON it is either a nested array or a
// flat array, the latter read as a single row.
type Matrix [][]float64

// MatrixFromDense copies a gonum matrix.
func MatrixFromDense(d mat.Matrix) Matrix {
	rows, cols := d.Dims()
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Dims returns the number of rows and the length of the first row.
func (m Matrix) Dims() (int, int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// Empty reports whether the matrix holds no values.
func (m Matrix) Empty() bool {
	rows, cols := m.Dims()
	return rows*cols == 0
}

// Values returns the elements in row-major order.
func (m Matrix) Values() []float64 {
	var out []float64
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}

// Dense converts to a gonum matrix.
func (m Matrix) Dense() *mat.Dense {
	rows, cols := m.Dims()
	return mat.NewDense(rows, cols, m.Values())
}

func (m Matrix) checkRectangular(name string) error {
	_, cols := m.Dims()
	for i, row := range m {
		if len(row) != cols {
			return errors.Errorf("%s row %d has %d values, expected %d", name, i, len(row), cols)
		}
	}
	return nil
}

// UnmarshalJSON accepts nested and flat arrays.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var nested [][]float64
	if err := json.Unmarshal(data, &nested); err == nil {
		*m = nested
		return nil
	}
	var flat []float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return errors.Wrap(err, "matrix must be an array of numbers or an array of rows")
	}
	if len(flat) == 0 {
		*m = nil
		return nil
	}
	*m = Matrix{flat}
	return nil
}

// CameraModel is a calibrated camera: a camera matrix (given directly or through intrinsics), lens
// distortion and the pose of the world with respect to the camera.
type CameraModel struct {
	Intrinsics   *PinholeCameraIntrinsics `json:"intrinsic_parameters,omitempty"`
	CameraMatrix Matrix                   `json:"camera_matrix,omitempty"`
	Distortion   Matrix                   `json:"distortion,omitempty"`
	// DistortionModel names the layout of Distortion. Empty means OpenCV order.
	DistortionModel DistortionType `json:"distortion_model,omitempty"`
	// Rotation is a rotation vector (3 values) or a 3x3 rotation matrix.
	Rotation    Matrix `json:"rotation"`
	Translation Matrix `json:"translation"`
}

// NewCameraModelFromJSONFile reads a CameraModel from a JSON file and validates it.
func NewCameraModelFromJSONFile(jsonPath string) (*CameraModel, error) {
	cm := &CameraModel{}
	if err := readJSONFile(jsonPath, cm); err != nil {
		return nil, err
	}
	if err := cm.Validate(); err != nil {
		return nil, err
	}
	return cm, nil
}

// K returns the 3x3 camera matrix, preferring CameraMatrix over Intrinsics.
func (cm *CameraModel) K() (*mat.Dense, error) {
	if !cm.CameraMatrix.Empty() {
		if err := cm.CameraMatrix.checkRectangular("camera matrix"); err != nil {
			return nil, err
		}
		rows, cols := cm.CameraMatrix.Dims()
		if rows != 3 || cols != 3 {
			return nil, utils.NewShapeError("camera matrix", rows, cols, "3x3")
		}
		return cm.CameraMatrix.Dense(), nil
	}
	if err := cm.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return cm.Intrinsics.GetCameraMatrix(), nil
}

// Validate checks the shape of every part of the model. All problems are reported together.
func (cm *CameraModel) Validate() error {
	if cm == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	var err error
	if _, kErr := cm.K(); kErr != nil {
		err = multierr.Append(err, kErr)
	}
	if dErr := cm.Distortion.checkRectangular("distortion"); dErr != nil {
		err = multierr.Append(err, dErr)
	} else if rows, cols := cm.Distortion.Dims(); rows*cols > 0 && rows != 1 && cols != 1 {
		err = multierr.Append(err, InvalidDistortionError(
			utils.NewShapeError("distortion", rows, cols, "a single row or column").Error()))
	} else if _, nErr := NewDistorter(cm.DistortionModel, cm.Distortion.Values()); nErr != nil {
		err = multierr.Append(err, nErr)
	}
	if rErr := cm.Rotation.checkRectangular("rotation"); rErr != nil {
		err = multierr.Append(err, rErr)
	} else if rows, cols := cm.Rotation.Dims(); rows*cols != 3 && !(rows == 3 && cols == 3) {
		err = multierr.Append(err, utils.NewShapeError("rotation", rows, cols, "3x3, 3x1 or 1x3"))
	}
	if tErr := cm.Translation.checkRectangular("translation"); tErr != nil {
		err = multierr.Append(err, tErr)
	} else if rows, cols := cm.Translation.Dims(); rows*cols != 3 {
		err = multierr.Append(err, utils.NewShapeError("translation", rows, cols, "3x1 or 1x3"))
	}
	return err
}

// RotationVector returns the camera rotation as a rotation vector. A 3x3 rotation is converted
// with Rodrigues.
func (cm *CameraModel) RotationVector() (r3.Vector, error) {
	return spatialmath.RotationVectorFromSlice(cm.Rotation.Values())
}

// Projector validates the model and returns the precomputed form used to project points.
func (cm *CameraModel) Projector() (*Projector, error) {
	if err := cm.Validate(); err != nil {
		return nil, err
	}
	k, err := cm.K()
	if err != nil {
		return nil, err
	}
	rvec, err := cm.RotationVector()
	if err != nil {
		return nil, err
	}
	dist, err := NewDistorter(cm.DistortionModel, cm.Distortion.Values())
	if err != nil {
		return nil, err
	}
	if err := dist.CheckValid(); err != nil {
		return nil, err
	}
	var width, height int
	if cm.Intrinsics != nil {
		width, height = cm.Intrinsics.Width, cm.Intrinsics.Height
	}
	t := cm.Translation.Values()
	p := &Projector{
		intrinsics: IntrinsicsFromCameraMatrix(k, width, height),
		t:          r3.Vector{X: t[0], Y: t[1], Z: t[2]},
		dist:       dist,
	}
	rot := spatialmath.RotationVectorToMatrix(rvec)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p.r[3*i+j] = rot.At(i, j)
		}
	}
	return p, nil
}

// Projector maps world points to pixels the way cv::projectPoints does. It is safe for concurrent use.
type Projector struct {
	intrinsics *PinholeCameraIntrinsics
	r          [9]float64
	t          r3.Vector
	dist       Distorter
}

// Project maps a world point to pixel coordinates.
func (p *Projector) Project(pt r3.Vector) r2.Point {
	x := p.r[0]*pt.X + p.r[1]*pt.Y + p.r[2]*pt.Z + p.t.X
	y := p.r[3]*pt.X + p.r[4]*pt.Y + p.r[5]*pt.Z + p.t.Y
	z := p.r[6]*pt.X + p.r[7]*pt.Y + p.r[8]*pt.Z + p.t.Z
	invZ := 1.0
	if z != 0 {
		invZ = 1 / z
	}
	xd, yd := p.dist.Transform(x*invZ, y*invZ)
	px, py := p.intrinsics.PointToPixel(xd, yd, 1)
	return r2.Point{X: px, Y: py}
}

// ProjectPoints maps every world point to pixel coordinates.
func (p *Projector) ProjectPoints(pts []r3.Vector) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = p.Project(pt)
	}
	return out
}
