// Package positioning locates tracked image points in 3D by constraining each one to a plane and
// minimizing its reprojection error through a calibrated camera.
package positioning

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/markertrack/rimage/transform"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("invalid positioning input")

// Status maps an error to the numeric status of the solvers: -1 for invalid input, 0 otherwise.
func Status(err error) int {
	if errors.Is(err, ErrInvalidInput) {
		return -1
	}
	return 0
}

// Surface is the plane Anchor + a1*V1 + a2*V2 a tracked point is constrained to.
type Surface struct {
	Anchor r3.Vector `json:"anchor"`
	V1     r3.Vector `json:"v1"`
	V2     r3.Vector `json:"v2"`
}

// At returns the surface point for the parameters (a1, a2).
func (s Surface) At(a1, a2 float64) r3.Vector {
	return s.Anchor.Add(s.V1.Mul(a1)).Add(s.V2.Mul(a2))
}

// Problem is one positioning call: a camera and, per tracked point, the observed image point and
// its constraint surface.
type Problem struct {
	Camera      *transform.CameraModel `json:"camera"`
	ImagePoints []r2.Point             `json:"image_points"`
	Anchors     []r3.Vector            `json:"anchors"`
	Basis1      []r3.Vector            `json:"basis1"`
	Basis2      []r3.Vector            `json:"basis2"`
}

// NewProblem builds a Problem from per-point surfaces.
func NewProblem(camera *transform.CameraModel, points []r2.Point, surfaces []Surface) *Problem {
	p := &Problem{Camera: camera, ImagePoints: points}
	for _, s := range surfaces {
		p.Anchors = append(p.Anchors, s.Anchor)
		p.Basis1 = append(p.Basis1, s.V1)
		p.Basis2 = append(p.Basis2, s.V2)
	}
	return p
}

// Surface returns the constraint surface of point i.
func (p *Problem) Surface(i int) Surface {
	return Surface{Anchor: p.Anchors[i], V1: p.Basis1[i], V2: p.Basis2[i]}
}

// Len is the number of tracked points.
func (p *Problem) Len() int {
	return len(p.ImagePoints)
}

// Validate checks the camera shapes and that every per-point list has the same, non-zero length.
func (p *Problem) Validate() error {
	if p == nil {
		return errors.Wrap(ErrInvalidInput, "no problem given")
	}
	var err error
	if p.Camera == nil {
		err = multierr.Append(err, errors.New("no camera given"))
	} else if camErr := p.Camera.Validate(); camErr != nil {
		err = multierr.Append(err, camErr)
	}
	if len(p.ImagePoints) < 1 {
		err = multierr.Append(err, errors.New("no image points given"))
	}
	if len(p.ImagePoints) != len(p.Anchors) || len(p.Anchors) != len(p.Basis1) || len(p.Basis1) != len(p.Basis2) {
		err = multierr.Append(err, errors.Errorf(
			"image points/anchors/basis1/basis2 do not have a consistent number of rows: %d %d %d %d",
			len(p.ImagePoints), len(p.Anchors), len(p.Basis1), len(p.Basis2)))
	}
	if err != nil {
		return errors.Wrap(multierr.Append(ErrInvalidInput, err), "positioning")
	}
	return nil
}
