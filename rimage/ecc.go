package rimage

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markertrack/utils"
)

// ErrAlignmentFailed is returned when enhanced correlation alignment cannot proceed from the
// given initial motion, e.g. because the correlation is degenerate or the template left the frame.
var ErrAlignmentFailed = errors.New("alignment failed")

// Motion is the Euclidean placement of a template in a frame: the frame position of the template's
// reference point and the template rotation in degrees.
type Motion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	RotDeg float64 `json:"rot_deg"`
}

// Point is the frame position of the reference point.
func (m Motion) Point() r2.Point {
	return r2.Point{X: m.X, Y: m.Y}
}

// AlignConfig controls the enhanced correlation alignment.
type AlignConfig struct {
	MaxIterations int     `json:"max_iterations"`
	Epsilon       float64 `json:"epsilon"`
	// MinValidFraction is the fraction of template pixels that must land inside the frame.
	MinValidFraction float64 `json:"min_valid_fraction"`
}

// DefaultAlignConfig returns 50 iterations, a correlation increment threshold of 0.001 and requires
// half of the template to overlap the frame.
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{MaxIterations: 50, Epsilon: 0.001, MinValidFraction: 0.5}
}

// Validate ensures all parts of the config are valid.
func (cfg AlignConfig) Validate() error {
	var err error
	if cfg.MaxIterations <= 0 {
		err = multierr.Combine(err, errors.Errorf("max_iterations must be positive, got %d", cfg.MaxIterations))
	}
	if cfg.Epsilon < 0 {
		err = multierr.Combine(err, errors.Errorf("epsilon cannot be negative, got %v", cfg.Epsilon))
	}
	if cfg.MinValidFraction < 0 || cfg.MinValidFraction > 1 {
		err = multierr.Combine(err, errors.Errorf("min_valid_fraction must be in [0, 1], got %v", cfg.MinValidFraction))
	}
	return err
}

// AlignResult is the outcome of a successful alignment.
type AlignResult struct {
	Motion
	// Correlation is the enhanced correlation coefficient of the last evaluated placement, in [-1, 1].
	Correlation float64 `json:"correlation"`
	Iterations  int     `json:"iterations"`
}

// eccSamples holds per-pixel terms of one alignment iteration. Only template pixels whose warped
// position (and its gradient stencil) lies inside the frame are kept.
type eccSamples struct {
	tmpl, img      []float64
	gRot, gX, gY   []float64
	sumTmpl, sumIm float64
}

func (s *eccSamples) reset(capacity int) {
	if s.tmpl == nil {
		s.tmpl = make([]float64, 0, capacity)
		s.img = make([]float64, 0, capacity)
		s.gRot = make([]float64, 0, capacity)
		s.gX = make([]float64, 0, capacity)
		s.gY = make([]float64, 0, capacity)
	}
	s.tmpl = s.tmpl[:0]
	s.img = s.img[:0]
	s.gRot = s.gRot[:0]
	s.gX = s.gX[:0]
	s.gY = s.gY[:0]
	s.sumTmpl = 0
	s.sumIm = 0
}

// Align refines the placement of tmpl inside frame by maximizing the enhanced correlation
// coefficient under a Euclidean motion model. ref is the template reference point in template
// pixel coordinates; init is the starting placement. A template pixel (x, y) maps to the frame
// position R(rot)*((x, y) - ref) + (X, Y).
func Align(frame, tmpl *Gray32, ref r2.Point, init Motion, cfg AlignConfig) (AlignResult, error) {
	if frame.Empty() || tmpl.Empty() {
		return AlignResult{}, errors.Wrap(ErrAlignmentFailed, "empty image")
	}
	if err := cfg.Validate(); err != nil {
		return AlignResult{}, err
	}

	if !init.finite() {
		return AlignResult{}, errors.Wrapf(ErrAlignmentFailed, "initial motion %+v is not finite", init)
	}

	theta := utils.DegToRad(init.RotDeg)
	tx, ty := init.X, init.Y
	total := tmpl.Width * tmpl.Height
	minValid := max(int(math.Ceil(cfg.MinValidFraction*float64(total))), 4)

	var s eccSamples
	rho := -1.0
	lastRho := math.Inf(-1)
	iter := 0
	for ; iter < cfg.MaxIterations && math.Abs(rho-lastRho) >= cfg.Epsilon; iter++ {
		s.reset(total)
		cos, sin := math.Cos(theta), math.Sin(theta)
		for y := 0; y < tmpl.Height; y++ {
			dy := float64(y) - ref.Y
			for x := 0; x < tmpl.Width; x++ {
				dx := float64(x) - ref.X
				u := cos*dx - sin*dy + tx
				v := sin*dx + cos*dy + ty
				center, ok := frame.Bilinear(u, v)
				if !ok {
					continue
				}
				left, okL := frame.Bilinear(u-1, v)
				right, okR := frame.Bilinear(u+1, v)
				up, okU := frame.Bilinear(u, v-1)
				down, okD := frame.Bilinear(u, v+1)
				if !okL || !okR || !okU || !okD {
					continue
				}
				gx := (right - left) / 2
				gy := (down - up) / 2
				t := float64(tmpl.Get(x, y))
				s.tmpl = append(s.tmpl, t)
				s.img = append(s.img, center)
				s.gX = append(s.gX, gx)
				s.gY = append(s.gY, gy)
				s.gRot = append(s.gRot, gx*(-sin*dx-cos*dy)+gy*(cos*dx-sin*dy))
				s.sumTmpl += t
				s.sumIm += center
			}
		}
		n := len(s.tmpl)
		if n < minValid {
			return AlignResult{}, errors.Wrapf(ErrAlignmentFailed, "only %d of %d template pixels inside the frame", n, total)
		}

		floats.AddConst(-s.sumTmpl/float64(n), s.tmpl)
		floats.AddConst(-s.sumIm/float64(n), s.img)
		tmplNorm := floats.Norm(s.tmpl, 2)
		imgNorm := floats.Norm(s.img, 2)
		if tmplNorm == 0 || imgNorm == 0 {
			return AlignResult{}, errors.Wrap(ErrAlignmentFailed, "zero variance in template or frame region")
		}
		correlation := floats.Dot(s.img, s.tmpl)
		lastRho = rho
		rho = correlation / (imgNorm * tmplNorm)
		if math.IsNaN(rho) {
			return AlignResult{}, errors.Wrap(ErrAlignmentFailed, "correlation is NaN")
		}

		cols := [3][]float64{s.gRot, s.gX, s.gY}
		hessian := mat.NewDense(3, 3, nil)
		imgProj := mat.NewVecDense(3, nil)
		tmplProj := mat.NewVecDense(3, nil)
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				v := floats.Dot(cols[i], cols[j])
				hessian.Set(i, j, v)
				hessian.Set(j, i, v)
			}
			imgProj.SetVec(i, floats.Dot(cols[i], s.img))
			tmplProj.SetVec(i, floats.Dot(cols[i], s.tmpl))
		}
		var hessianInv mat.Dense
		if err := hessianInv.Inverse(hessian); err != nil {
			return AlignResult{}, errors.Wrap(ErrAlignmentFailed, "singular hessian")
		}

		var imgProjHess mat.VecDense
		imgProjHess.MulVec(&hessianInv, imgProj)
		lambdaN := imgNorm*imgNorm - mat.Dot(imgProj, &imgProjHess)
		lambdaD := correlation - mat.Dot(tmplProj, &imgProjHess)
		if lambdaD <= 0 {
			return AlignResult{}, errors.Wrap(ErrAlignmentFailed,
				"correlation would be minimized; template and frame may be uncorrelated or non-overlapping")
		}
		lambda := lambdaN / lambdaD

		// error = lambda*template - image, projected onto the steepest descent images
		errProj := mat.NewVecDense(3, nil)
		for i := 0; i < 3; i++ {
			errProj.SetVec(i, lambda*tmplProj.AtVec(i)-imgProj.AtVec(i))
		}
		var delta mat.VecDense
		delta.MulVec(&hessianInv, errProj)
		theta += delta.AtVec(0)
		tx += delta.AtVec(1)
		ty += delta.AtVec(2)
		if !finite(theta, tx, ty) {
			return AlignResult{}, errors.Wrapf(ErrAlignmentFailed, "motion update diverged at iteration %d", iter)
		}
	}

	return AlignResult{
		Motion:      Motion{X: tx, Y: ty, RotDeg: utils.RadToDeg(theta)},
		Correlation: rho,
		Iterations:  iter,
	}, nil
}

func (m Motion) finite() bool {
	return finite(m.X, m.Y, m.RotDeg)
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
